// Package petest builds small synthetic PE32 images for tests.
package petest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZacharyZcR/racerpatch/internal/profile"
)

const (
	lfanew             = 0xD0
	optionalHeaderSize = 224
	headerSize         = 0x400
	sectionHeaderSize  = 40
)

// Section is one entry of the synthetic section table.
type Section struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	RawOffset       uint32
	RawSize         uint32
	Characteristics uint32
}

// Image describes a synthetic 32-bit PE file.
type Image struct {
	Machine     uint16
	Magic       uint16
	Timestamp   uint32
	ImageBase   uint32
	SizeOfImage uint32
	FileSize    uint32
	Sections    []Section
}

// Racer returns an image with the same header timestamp and section layout as
// the supported racer build.
func Racer() Image {
	const (
		code  = 0x60000020
		rdata = 0x40000040
		data  = 0xC0000040
	)
	return Image{
		Machine:     0x14C,
		Magic:       0x10B,
		Timestamp:   profile.Racer.Timestamp,
		ImageBase:   uint32(profile.Racer.ImageBase),
		SizeOfImage: 0xAD0000,
		FileSize:    0xD5000,
		Sections: []Section{
			{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0xAA750, RawOffset: 0x400, RawSize: 0xAA800, Characteristics: code},
			{Name: ".rdata", VirtualAddress: 0xAC000, VirtualSize: 0x54A2, RawOffset: 0xAAC00, RawSize: 0x5600, Characteristics: rdata},
			{Name: ".data", VirtualAddress: 0xB2000, VirtualSize: 0xA1B000, RawOffset: 0xB0200, RawSize: 0x23600, Characteristics: data},
			{Name: ".rsrc", VirtualAddress: 0xACE000, VirtualSize: 0x17B8, RawOffset: 0xD3800, RawSize: 0x1800, Characteristics: rdata},
		},
	}
}

// Bytes renders the image. Section contents are zero.
func (img Image) Bytes() []byte {
	buf := make([]byte, img.FileSize)
	le := binary.LittleEndian

	copy(buf, "MZ")
	le.PutUint32(buf[0x3C:], lfanew)

	nt := buf[lfanew:]
	copy(nt, "PE\x00\x00")

	coff := nt[4:]
	le.PutUint16(coff[0:], img.Machine)
	le.PutUint16(coff[2:], uint16(len(img.Sections)))
	le.PutUint32(coff[4:], img.Timestamp)
	le.PutUint16(coff[16:], optionalHeaderSize)
	le.PutUint16(coff[18:], 0x010F)

	opt := nt[24:]
	le.PutUint16(opt[0:], img.Magic)
	le.PutUint32(opt[16:], 0x1000) // AddressOfEntryPoint
	le.PutUint32(opt[28:], img.ImageBase)
	le.PutUint32(opt[32:], 0x1000) // SectionAlignment
	le.PutUint32(opt[36:], 0x200)  // FileAlignment
	le.PutUint16(opt[40:], 4)      // MajorOperatingSystemVersion
	le.PutUint16(opt[48:], 4)      // MajorSubsystemVersion
	le.PutUint32(opt[56:], img.SizeOfImage)
	le.PutUint32(opt[60:], headerSize)
	le.PutUint16(opt[68:], 2) // IMAGE_SUBSYSTEM_WINDOWS_GUI
	le.PutUint32(opt[72:], 0x100000)
	le.PutUint32(opt[76:], 0x1000)
	le.PutUint32(opt[80:], 0x100000)
	le.PutUint32(opt[84:], 0x1000)
	le.PutUint32(opt[92:], 16)

	for i, s := range img.Sections {
		sh := nt[24+optionalHeaderSize+i*sectionHeaderSize:]
		copy(sh[0:8], s.Name)
		le.PutUint32(sh[8:], s.VirtualSize)
		le.PutUint32(sh[12:], s.VirtualAddress)
		le.PutUint32(sh[16:], s.RawSize)
		le.PutUint32(sh[20:], s.RawOffset)
		le.PutUint32(sh[36:], s.Characteristics)
	}
	return buf
}

// Headers returns the first headerSize bytes of the rendered image.
func (img Image) Headers() []byte {
	return img.Bytes()[:headerSize]
}

// WriteFile writes the image into a temporary directory and returns its path.
func (img Image) WriteFile(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swep1rcr.exe")
	if err := os.WriteFile(path, img.Bytes(), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}
