// Package pe reads and updates the PE headers of the patched image.
package pe

import (
	"errors"
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/target"
)

const (
	dosLfanewOffset   = 0x3C
	peSignature       = 0x00004550 // "PE\0\0"
	sectionHeaderSize = 40

	// BootstrapHeaderSize is mapped before the build is known, enough to
	// reach the section table of any ordinary executable.
	BootstrapHeaderSize = 0x1000
)

// Offsets relative to the PE signature.
const (
	fieldNumberOfSections      = 4 + 2
	fieldTimeDateStamp         = 4 + 4
	fieldSizeOfOptionalHeader  = 4 + 16
	fieldSizeOfCode            = 24 + 4
	fieldSizeOfInitializedData = 24 + 8
	fieldImageBase             = 24 + 28
	fieldSizeOfImage           = 24 + 56
	fieldCheckSum              = 24 + 64
)

// Section header field offsets.
const (
	sectionVirtualSize      = 8
	sectionVirtualAddress   = 12
	sectionSizeOfRawData    = 16
	sectionPointerToRawData = 20
	sectionCharacteristics  = 36
)

// ErrNotPE is returned when the image lacks a PE signature.
var ErrNotPE = errors.New("不是有效的PE文件")

// Headers addresses the header fields of a mapped image through a Target.
// It works for both backends because the headers are mapped at the image base.
type Headers struct {
	acc  *target.Accessor
	base target.Address
	nt   target.Address
}

// LocateHeaders follows e_lfanew and checks the PE signature.
func LocateHeaders(acc *target.Accessor, base target.Address) (*Headers, error) {
	lfanew, err := acc.Read32(base.Add(dosLfanewOffset))
	if err != nil {
		return nil, fmt.Errorf("读取DOS头失败: %w", err)
	}
	if lfanew >= BootstrapHeaderSize {
		return nil, fmt.Errorf("%w: e_lfanew 0x%X", ErrNotPE, lfanew)
	}

	nt := base.Add(lfanew)
	sig, err := acc.Read32(nt)
	if err != nil {
		return nil, fmt.Errorf("读取PE签名失败: %w", err)
	}
	if sig != peSignature {
		return nil, fmt.Errorf("%w: 签名 0x%08X", ErrNotPE, sig)
	}

	return &Headers{acc: acc, base: base, nt: nt}, nil
}

// Base returns the image base the headers were located at.
func (h *Headers) Base() target.Address {
	return h.base
}

// Field returns the address of a field at off bytes past the PE signature.
func (h *Headers) Field(off uint32) target.Address {
	return h.nt.Add(off)
}

// Timestamp returns the COFF TimeDateStamp, used as the build fingerprint.
func (h *Headers) Timestamp() (uint32, error) {
	return h.acc.Read32(h.Field(fieldTimeDateStamp))
}

// ImageBase returns the preferred load address from the optional header.
func (h *Headers) ImageBase() (uint32, error) {
	return h.acc.Read32(h.Field(fieldImageBase))
}

// SizeOfImage returns the virtual size of the image.
func (h *Headers) SizeOfImage() (uint32, error) {
	return h.acc.Read32(h.Field(fieldSizeOfImage))
}

// NumberOfSections returns the COFF section count.
func (h *Headers) NumberOfSections() (uint16, error) {
	return h.acc.Read16(h.Field(fieldNumberOfSections))
}

// SectionTable returns the address of the first section header.
func (h *Headers) SectionTable() (target.Address, error) {
	size, err := h.acc.Read16(h.Field(fieldSizeOfOptionalHeader))
	if err != nil {
		return 0, fmt.Errorf("读取COFF头失败: %w", err)
	}
	return h.Field(24 + uint32(size)), nil
}

// SectionHeader is one decoded entry of the section table.
type SectionHeader struct {
	Name             string
	VirtualSize      uint32
	VirtualAddress   uint32
	SizeOfRawData    uint32
	PointerToRawData uint32
	Characteristics  uint32
}

// Sections reads the section table.
func (h *Headers) Sections() ([]SectionHeader, error) {
	table, err := h.SectionTable()
	if err != nil {
		return nil, err
	}
	count, err := h.NumberOfSections()
	if err != nil {
		return nil, fmt.Errorf("读取节区数量失败: %w", err)
	}

	raw, err := h.acc.Target().Read(table, int(count)*sectionHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("读取节区表失败: %w", err)
	}

	sections := make([]SectionHeader, count)
	for i := range sections {
		sections[i] = decodeSectionHeader(raw[i*sectionHeaderSize : (i+1)*sectionHeaderSize])
	}
	return sections, nil
}
