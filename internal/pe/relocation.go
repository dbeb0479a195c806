package pe

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	dirBaseReloc         = 5
	dllCharDynamicBase   = 0x0040
	relocBlockHeaderSize = 8
)

// RelocationInfo describes whether the loader may move the image.
type RelocationInfo struct {
	DynamicBase bool
	Blocks      int
	Entries     int
}

// Rebasable reports whether the image can load away from its preferred
// base. Every patch address assumes it does not.
func (r *RelocationInfo) Rebasable() bool {
	return r.DynamicBase && r.Blocks > 0
}

// ParseRelocations counts the base relocation blocks of f.
func ParseRelocations(f *pe.File, r io.ReaderAt) (*RelocationInfo, error) {
	info := &RelocationInfo{}

	var dir pe.DataDirectory
	switch opt := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		info.DynamicBase = opt.DllCharacteristics&dllCharDynamicBase != 0
		if len(opt.DataDirectory) > dirBaseReloc {
			dir = opt.DataDirectory[dirBaseReloc]
		}
	case *pe.OptionalHeader64:
		info.DynamicBase = opt.DllCharacteristics&dllCharDynamicBase != 0
		if len(opt.DataDirectory) > dirBaseReloc {
			dir = opt.DataDirectory[dirBaseReloc]
		}
	}
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return info, nil
	}

	start, err := rvaFileOffset(f, dir.VirtualAddress)
	if err != nil {
		return info, err
	}

	end := start + int64(dir.Size)
	for off := start; off+relocBlockHeaderSize <= end; {
		var hdr [relocBlockHeaderSize]byte
		if _, err := r.ReadAt(hdr[:], off); err != nil {
			return info, fmt.Errorf("读取重定位块失败: %w", err)
		}
		size := binary.LittleEndian.Uint32(hdr[4:])
		if size < relocBlockHeaderSize {
			break
		}
		info.Blocks++
		info.Entries += int(size-relocBlockHeaderSize) / 2
		off += int64(size)
	}

	return info, nil
}

// rvaFileOffset maps an RVA inside a section's raw data to its file offset.
func rvaFileOffset(f *pe.File, rva uint32) (int64, error) {
	for _, s := range f.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.Size {
			return int64(s.Offset) + int64(rva-s.VirtualAddress), nil
		}
	}
	return 0, fmt.Errorf("RVA 0x%X 不在任何节区的文件数据中", rva)
}
