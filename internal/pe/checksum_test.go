package pe

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"testing"

	"github.com/ZacharyZcR/racerpatch/internal/pe/petest"
)

func TestCalculatePEChecksum(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		checksumOffset int64
		want           uint32
	}{
		{
			name:           "Simple 8-byte file",
			data:           []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00},
			checksumOffset: -1,
			want:           11, // 1 + 2 + filesize(8)
		},
		{
			name: "File with checksum field to skip",
			data: []byte{
				0x01, 0x00, 0x00, 0x00,
				0xFF, 0xFF, 0xFF, 0xFF, // skipped
				0x02, 0x00, 0x00, 0x00,
			},
			checksumOffset: 4,
			want:           15, // 1 + 2 + filesize(12)
		},
		{
			name:           "Partial last DWORD",
			data:           []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00},
			checksumOffset: -1,
			want:           9, // 1 + 2 (padded) + filesize(6)
		},
		{
			name: "Carry folded",
			data: func() []byte {
				b := make([]byte, 8)
				binary.LittleEndian.PutUint32(b[0:], 0xFFFFFFFF)
				binary.LittleEndian.PutUint32(b[4:], 0x00000002)
				return b
			}(),
			checksumOffset: -1,
			// 0xFFFFFFFF + 2 folds to 2, then + filesize(8).
			want: 10,
		},
		{
			name: "Larger than 64 KiB",
			data: func() []byte {
				b := make([]byte, 0x20000)
				for i := 0; i < len(b); i += 2 {
					b[i] = 1
				}
				return b
			}(),
			checksumOffset: 0x158,
			// 0x10000 words of 1 less the two in the checksum field, then
			// + filesize(0x20000) without truncation.
			want: 0x2FFFE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculatePEChecksum(bytes.NewReader(tt.data), int64(len(tt.data)), tt.checksumOffset)
			if err != nil {
				t.Fatalf("CalculatePEChecksum() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CalculatePEChecksum() = 0x%08X, want 0x%08X", got, tt.want)
			}
		})
	}
}

// wordChecksum is the CheckSumMappedFile algorithm: a 16-bit one's
// complement sum of the words outside the checksum field plus the length.
func wordChecksum(data []byte, checksumOffset int) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 2 {
		if i >= checksumOffset && i < checksumOffset+4 {
			continue
		}
		word := uint32(data[i])
		if i+1 < len(data) {
			word |= uint32(data[i+1]) << 8
		}
		sum += word
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	sum = (sum & 0xFFFF) + (sum >> 16)
	return sum + uint32(len(data))
}

func TestCalculatePEChecksumMatchesWordSum(t *testing.T) {
	sizes := []int{0x1000, 0x10000, 0x10002, 0x23456, 0x100000}

	for _, size := range sizes {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i*7 + i>>8 + i>>13)
		}
		const checksumOffset = 0x158

		got, err := CalculatePEChecksum(bytes.NewReader(data), int64(size), checksumOffset)
		if err != nil {
			t.Fatalf("CalculatePEChecksum(%#x) error = %v", size, err)
		}
		if want := wordChecksum(data, checksumOffset); got != want {
			t.Errorf("CalculatePEChecksum(%#x bytes) = 0x%08X, want 0x%08X", size, got, want)
		}
	}
}

func TestVerifyChecksum(t *testing.T) {
	data := petest.Racer().Bytes()
	const checksumOffset = 0xD0 + fieldCheckSum

	sum, err := CalculatePEChecksum(bytes.NewReader(data), int64(len(data)), checksumOffset)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		stored uint32
		want   bool
	}{
		{name: "not checksummed", stored: 0, want: true},
		{name: "matching", stored: sum, want: true},
		{name: "stale", stored: sum + 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := append([]byte(nil), data...)
			binary.LittleEndian.PutUint32(img[checksumOffset:], tt.stored)

			f, err := pe.NewFile(bytes.NewReader(img))
			if err != nil {
				t.Fatal(err)
			}

			info, err := VerifyChecksum(f, bytes.NewReader(img), int64(len(img)))
			if err != nil {
				t.Fatalf("VerifyChecksum() error = %v", err)
			}
			if info.Valid != tt.want {
				t.Errorf("VerifyChecksum() valid = %v, want %v", info.Valid, tt.want)
			}
		})
	}
}
