package pe

import (
	"debug/pe"
	"encoding/binary"
	"io"
)

// ChecksumInfo contains PE checksum verification results.
type ChecksumInfo struct {
	Stored   uint32
	Computed uint32
	Valid    bool
}

// VerifyChecksum calculates and verifies PE file checksum.
func VerifyChecksum(f *pe.File, r io.ReaderAt, filesize int64) (*ChecksumInfo, error) {
	var storedChecksum uint32
	if oh32, ok := f.OptionalHeader.(*pe.OptionalHeader32); ok {
		storedChecksum = oh32.CheckSum
	} else if oh64, ok := f.OptionalHeader.(*pe.OptionalHeader64); ok {
		storedChecksum = oh64.CheckSum
	}

	// If checksum is 0, file is not checksummed (common for non-system files)
	if storedChecksum == 0 {
		return &ChecksumInfo{Valid: true}, nil
	}

	dosHeader := make([]byte, 64)
	if _, err := r.ReadAt(dosHeader, 0); err != nil {
		return nil, err
	}
	checksumOffset := int64(binary.LittleEndian.Uint32(dosHeader[dosLfanewOffset:])) + fieldCheckSum

	computed, err := CalculatePEChecksum(r, filesize, checksumOffset)
	if err != nil {
		return nil, err
	}

	return &ChecksumInfo{
		Stored:   storedChecksum,
		Computed: computed,
		Valid:    storedChecksum == computed,
	}, nil
}

// CalculatePEChecksum calculates PE checksum using the standard algorithm.
// The 4 bytes at checksumOffset are skipped; a negative offset skips nothing.
func CalculatePEChecksum(r io.ReaderAt, filesize int64, checksumOffset int64) (uint32, error) {
	var checksum uint64
	buf := make([]byte, 4)

	// Process file in 4-byte chunks
	for offset := int64(0); offset < filesize; offset += 4 {
		// Skip checksum field itself
		if checksumOffset >= 0 && offset >= checksumOffset && offset < checksumOffset+4 {
			continue
		}

		n, err := r.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return 0, err
		}

		if n < 4 {
			// Handle partial read at end of file
			for i := n; i < 4; i++ {
				buf[i] = 0
			}
		}

		dword := binary.LittleEndian.Uint32(buf)
		checksum += uint64(dword)

		// Fold high 32 bits into low 32 bits
		if checksum > 0xFFFFFFFF {
			checksum = (checksum & 0xFFFFFFFF) + (checksum >> 32)
		}
	}

	// Fold to 16 bits, then add the file length as a 32-bit value.
	checksum = (checksum & 0xFFFF) + (checksum >> 16)
	checksum += checksum >> 16
	checksum &= 0xFFFF

	return uint32(checksum) + uint32(filesize), nil
}
