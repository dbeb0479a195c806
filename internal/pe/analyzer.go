package pe

import (
	"debug/pe"
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/profile"
)

// Info contains the layout of an image file.
type Info struct {
	FilePath     string
	FileSize     int64
	Architecture string
	Subsystem    string
	EntryPoint   uint64
	ImageBase    uint64
	SizeOfImage  uint32
	Timestamp    uint32
	Build        string // empty when the timestamp matches no known build
	Checksum     *ChecksumInfo
	Relocations  *RelocationInfo
	Sections     []SectionInfo
}

// SectionInfo contains information about a PE section.
type SectionInfo struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	Offset          uint32
	Size            uint32
	Characteristics uint32
	Permissions     string
}

// Analyzer extracts layout information from PE files.
type Analyzer struct {
	reader *Reader
}

// NewAnalyzer creates a new analyzer for the given reader.
func NewAnalyzer(r *Reader) *Analyzer {
	return &Analyzer{reader: r}
}

// Analyze extracts the header summary, sections and checksum state.
func (a *Analyzer) Analyze() (*Info, error) {
	f := a.reader.File()

	info := &Info{
		FilePath:  a.reader.FilePath(),
		FileSize:  a.reader.FileSize(),
		Timestamp: f.TimeDateStamp,
	}

	if prof, err := profile.Lookup(f.TimeDateStamp); err == nil {
		info.Build = prof.Name
	}

	if err := a.extractBasicInfo(f, info); err != nil {
		return nil, err
	}

	a.extractSections(f, info)
	a.verifyChecksum(f, info)

	if relocs, err := ParseRelocations(f, a.reader.RawFile()); err == nil {
		info.Relocations = relocs
	}

	return info, nil
}

func (a *Analyzer) extractBasicInfo(f *pe.File, info *Info) error {
	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		info.Architecture = "x86 (32位)"
	case pe.IMAGE_FILE_MACHINE_AMD64:
		info.Architecture = "x64 (64位)"
	default:
		info.Architecture = fmt.Sprintf("未知 (0x%X)", f.Machine)
	}

	switch opt := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		info.EntryPoint = uint64(opt.AddressOfEntryPoint)
		info.ImageBase = uint64(opt.ImageBase)
		info.SizeOfImage = opt.SizeOfImage
		info.Subsystem = getSubsystem(opt.Subsystem)
	case *pe.OptionalHeader64:
		info.EntryPoint = uint64(opt.AddressOfEntryPoint)
		info.ImageBase = opt.ImageBase
		info.SizeOfImage = opt.SizeOfImage
		info.Subsystem = getSubsystem(opt.Subsystem)
	default:
		return fmt.Errorf("%w: 缺少可选头", ErrNotPE)
	}

	return nil
}

func (a *Analyzer) extractSections(f *pe.File, info *Info) {
	for _, section := range f.Sections {
		info.Sections = append(info.Sections, SectionInfo{
			Name:            section.Name,
			VirtualAddress:  section.VirtualAddress,
			VirtualSize:     section.VirtualSize,
			Offset:          section.Offset,
			Size:            section.Size,
			Characteristics: section.Characteristics,
			Permissions:     getSectionPermissions(section.Characteristics),
		})
	}
}

func (a *Analyzer) verifyChecksum(f *pe.File, info *Info) {
	checksum, err := VerifyChecksum(f, a.reader.RawFile(), a.reader.FileSize())
	if err != nil {
		// Silently ignore checksum verification errors
		return
	}
	info.Checksum = checksum
}

// Section returns the named section, or nil.
func (i *Info) Section(name string) *SectionInfo {
	for idx := range i.Sections {
		if i.Sections[idx].Name == name {
			return &i.Sections[idx]
		}
	}
	return nil
}

func getSubsystem(subsystem uint16) string {
	switch subsystem {
	case pe.IMAGE_SUBSYSTEM_WINDOWS_GUI:
		return "Windows GUI"
	case pe.IMAGE_SUBSYSTEM_WINDOWS_CUI:
		return "Windows 控制台"
	case pe.IMAGE_SUBSYSTEM_NATIVE:
		return "Native"
	default:
		return fmt.Sprintf("未知 (0x%X)", subsystem)
	}
}

func getSectionPermissions(c uint32) string {
	perms := []byte("---")
	if c&pe.IMAGE_SCN_MEM_READ != 0 {
		perms[0] = 'R'
	}
	if c&pe.IMAGE_SCN_MEM_WRITE != 0 {
		perms[1] = 'W'
	}
	if c&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		perms[2] = 'X'
	}
	return string(perms)
}
