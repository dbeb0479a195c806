package pe

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/target"
	"github.com/sirupsen/logrus"
)

// PageSize is the alignment used for the appended section, both in the file
// and in memory.
const PageSize = 0x1000

// PatchCharacteristics marks the appended section as code and initialized
// data that is readable, writable and executable.
const PatchCharacteristics = pe.IMAGE_SCN_CNT_CODE |
	pe.IMAGE_SCN_CNT_INITIALIZED_DATA |
	pe.IMAGE_SCN_MEM_EXECUTE |
	pe.IMAGE_SCN_MEM_READ |
	pe.IMAGE_SCN_MEM_WRITE

var (
	// ErrAlreadyPatched is returned when the section to append already exists.
	ErrAlreadyPatched = errors.New("文件已经打过补丁")
	// ErrNoHeaderSpace is returned when the section table is full.
	ErrNoHeaderSpace = errors.New("节区头表空间不足，无法添加新节区")
)

// SectionInjector appends a new section to an image file.
type SectionInjector struct {
	file    *target.File
	headers *Headers
	acc     *target.Accessor
	log     logrus.FieldLogger
}

// NewSectionInjector creates a section injector for file.
func NewSectionInjector(file *target.File, headers *Headers, log logrus.FieldLogger) *SectionInjector {
	return &SectionInjector{
		file:    file,
		headers: headers,
		acc:     target.NewAccessor(file),
		log:     log,
	}
}

// AppendSection grows the file by a zero-filled section of capacity bytes
// and registers it in the headers: section table entry, section count,
// SizeOfImage, SizeOfCode and SizeOfInitializedData.
//
// The header fields are updated one after another with no journal. If the
// process dies between two of these writes the file is left inconsistent and
// must be restored from a clean copy.
func (s *SectionInjector) AppendSection(name string, capacity, characteristics uint32) (target.Section, error) {
	if len(name) > 8 {
		return target.Section{}, fmt.Errorf("节区名称过长: %d 字节 (最大8字节)", len(name))
	}

	sections, err := s.headers.Sections()
	if err != nil {
		return target.Section{}, err
	}
	for _, sec := range sections {
		if sec.Name == name {
			return target.Section{}, fmt.Errorf("%w: 节区 %q 已存在", ErrAlreadyPatched, name)
		}
	}

	entry, err := s.checkHeaderSpace(sections)
	if err != nil {
		return target.Section{}, err
	}

	fileSize, err := s.file.Size()
	if err != nil {
		return target.Section{}, err
	}
	fileOffset := alignUp(uint32(fileSize), PageSize)

	sizeOfImage, err := s.headers.SizeOfImage()
	if err != nil {
		return target.Section{}, fmt.Errorf("读取SizeOfImage失败: %w", err)
	}
	virtualAddress := alignUp(sizeOfImage, PageSize)

	if err := s.file.Extend(int64(fileOffset) + int64(capacity)); err != nil {
		return target.Section{}, err
	}

	header := encodeSectionHeader(SectionHeader{
		Name:             name,
		VirtualSize:      capacity,
		VirtualAddress:   virtualAddress,
		SizeOfRawData:    capacity,
		PointerToRawData: fileOffset,
		Characteristics:  characteristics,
	})
	if err := s.file.Write(entry, header); err != nil {
		return target.Section{}, fmt.Errorf("写入节区头失败: %w", err)
	}

	if err := s.acc.Add16(s.headers.Field(fieldNumberOfSections), 1); err != nil {
		return target.Section{}, fmt.Errorf("更新节区数量失败: %w", err)
	}
	if err := s.acc.Write32(s.headers.Field(fieldSizeOfImage), virtualAddress+capacity); err != nil {
		return target.Section{}, fmt.Errorf("更新SizeOfImage失败: %w", err)
	}
	if err := s.acc.Add32(s.headers.Field(fieldSizeOfCode), capacity); err != nil {
		return target.Section{}, fmt.Errorf("更新SizeOfCode失败: %w", err)
	}
	if err := s.acc.Add32(s.headers.Field(fieldSizeOfInitializedData), capacity); err != nil {
		return target.Section{}, fmt.Errorf("更新SizeOfInitializedData失败: %w", err)
	}

	sec := target.Section{
		Name:         name,
		VirtualStart: s.headers.Base().Add(virtualAddress),
		VirtualSize:  capacity,
		FileStart:    target.Offset(fileOffset),
	}
	s.log.WithFields(logrus.Fields{
		"section": name,
		"addr":    sec.VirtualStart.String(),
		"offset":  sec.FileStart.String(),
		"size":    capacity,
	}).Info("appended section")
	return sec, nil
}

// checkHeaderSpace returns the address of the next free section header and
// verifies it ends before the first section's raw data.
func (s *SectionInjector) checkHeaderSpace(sections []SectionHeader) (target.Address, error) {
	table, err := s.headers.SectionTable()
	if err != nil {
		return 0, err
	}
	entry := table.Add(uint32(len(sections)) * sectionHeaderSize)
	end := uint32(entry-s.headers.Base()) + sectionHeaderSize

	for _, sec := range sections {
		if sec.PointerToRawData != 0 && end > sec.PointerToRawData {
			return 0, ErrNoHeaderSpace
		}
	}
	return entry, nil
}

func encodeSectionHeader(h SectionHeader) []byte {
	buf := make([]byte, sectionHeaderSize)
	copy(buf[0:8], h.Name)
	binary.LittleEndian.PutUint32(buf[sectionVirtualSize:], h.VirtualSize)
	binary.LittleEndian.PutUint32(buf[sectionVirtualAddress:], h.VirtualAddress)
	binary.LittleEndian.PutUint32(buf[sectionSizeOfRawData:], h.SizeOfRawData)
	binary.LittleEndian.PutUint32(buf[sectionPointerToRawData:], h.PointerToRawData)
	binary.LittleEndian.PutUint32(buf[sectionCharacteristics:], h.Characteristics)
	return buf
}

func decodeSectionHeader(buf []byte) SectionHeader {
	name := buf[0:8]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return SectionHeader{
		Name:             string(name),
		VirtualSize:      binary.LittleEndian.Uint32(buf[sectionVirtualSize:]),
		VirtualAddress:   binary.LittleEndian.Uint32(buf[sectionVirtualAddress:]),
		SizeOfRawData:    binary.LittleEndian.Uint32(buf[sectionSizeOfRawData:]),
		PointerToRawData: binary.LittleEndian.Uint32(buf[sectionPointerToRawData:]),
		Characteristics:  binary.LittleEndian.Uint32(buf[sectionCharacteristics:]),
	}
}

// alignUp aligns a value up to the nearest multiple of alignment.
func alignUp(value, alignment uint32) uint32 {
	if alignment == 0 {
		return value
	}
	return ((value + alignment - 1) / alignment) * alignment
}
