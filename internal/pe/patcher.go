package pe

import (
	"debug/pe"
	"errors"
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/ZacharyZcR/racerpatch/internal/profile"
	"github.com/ZacharyZcR/racerpatch/internal/target"
	"github.com/sirupsen/logrus"
)

// ErrNotIdentified is returned when an operation needs the build profile
// before Identify succeeded.
var ErrNotIdentified = errors.New("尚未识别文件版本")

// Patcher patches an executable on disk.
type Patcher struct {
	file           *target.File
	acc            *target.Accessor
	headers        *Headers
	profile        *profile.Profile
	legacyFallback bool
	updateChecksum bool
	log            logrus.FieldLogger
}

// NewPatcher opens path for patching. The file must be a 32-bit x86 PE
// image; imageBase is the address it is expected to load at.
func NewPatcher(path string, imageBase target.Address, log logrus.FieldLogger) (*Patcher, error) {
	if err := checkImage(path); err != nil {
		return nil, err
	}

	tr := target.NewTranslator(imageBase, log, target.HeaderSection(imageBase, BootstrapHeaderSize))
	file, err := target.OpenFile(path, tr, log)
	if err != nil {
		return nil, err
	}

	return &Patcher{
		file:           file,
		acc:            target.NewAccessor(file),
		updateChecksum: true,
		log:            log,
	}, nil
}

// checkImage parses the file with debug/pe before anything is written.
func checkImage(path string) error {
	f, err := pe.Open(path)
	if err != nil {
		return fmt.Errorf("解析PE文件失败: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.FileHeader.Machine != pe.IMAGE_FILE_MACHINE_I386 {
		return fmt.Errorf("%w: 不支持的架构 0x%X", ErrNotPE, f.FileHeader.Machine)
	}
	if _, ok := f.OptionalHeader.(*pe.OptionalHeader32); !ok {
		return fmt.Errorf("%w: 需要PE32可选头", ErrNotPE)
	}
	return nil
}

// SetLegacyFallback maps addresses outside every known section with the
// fallback section's delta instead of failing. Off by default.
func (p *Patcher) SetLegacyFallback(enabled bool) {
	p.legacyFallback = enabled
}

// SetUpdateChecksum controls whether Finish refreshes the PE checksum.
func (p *Patcher) SetUpdateChecksum(enabled bool) {
	p.updateChecksum = enabled
}

// Close closes the file.
func (p *Patcher) Close() error {
	return p.file.Close()
}

// Target returns the file backend.
func (p *Patcher) Target() target.Target {
	return p.file
}

// File returns the file backend with its file-only operations.
func (p *Patcher) File() *target.File {
	return p.file
}

// Identify checks the fingerprint and installs the build's section map.
func (p *Patcher) Identify() (*profile.Profile, error) {
	prof, headers, err := Identify(p.acc, p.file.Translator().ImageBase())
	if err != nil {
		return nil, err
	}

	tr := prof.Translator(p.log)
	if p.legacyFallback {
		if err := tr.EnableFallback(prof.FallbackSection); err != nil {
			return nil, err
		}
	}
	p.file.SetTranslator(tr)

	p.profile = prof
	p.headers = headers
	return prof, nil
}

// CheckUnpatched returns ErrAlreadyPatched if the build's patch section
// is already present.
func (p *Patcher) CheckUnpatched() error {
	if p.profile == nil {
		return ErrNotIdentified
	}

	sections, err := p.headers.Sections()
	if err != nil {
		return err
	}
	for _, sec := range sections {
		if sec.Name == p.profile.PatchSection {
			return fmt.Errorf("%w: 节区 %q 已存在", ErrAlreadyPatched, sec.Name)
		}
	}
	return nil
}

// ReserveArena appends the patch section and returns a cursor over it.
func (p *Patcher) ReserveArena(capacity uint32) (arena.Cursor, error) {
	if p.profile == nil {
		return arena.Cursor{}, ErrNotIdentified
	}

	injector := NewSectionInjector(p.file, p.headers, p.log)
	sec, err := injector.AppendSection(p.profile.PatchSection, capacity, PatchCharacteristics)
	if err != nil {
		return arena.Cursor{}, err
	}
	p.file.Translator().Add(sec)

	return arena.New(sec.VirtualStart, capacity)
}

// Finish refreshes the checksum if enabled and flushes the file.
func (p *Patcher) Finish() error {
	if p.updateChecksum {
		if err := p.UpdateChecksum(); err != nil {
			return err
		}
	}
	return p.file.Sync()
}

// Abort leaves the file as is; a partially patched file is discarded by
// restoring the original copy.
func (p *Patcher) Abort() error {
	return p.file.Sync()
}

// UpdateChecksum recalculates and updates the PE checksum.
func (p *Patcher) UpdateChecksum() error {
	if p.headers == nil {
		return ErrNotIdentified
	}

	field := p.headers.Field(fieldCheckSum)
	checksumOffset, err := p.file.Translator().Translate(field)
	if err != nil {
		return fmt.Errorf("定位校验和失败: %w", err)
	}

	size, err := p.file.Size()
	if err != nil {
		return err
	}

	checksum, err := CalculatePEChecksum(p.file.ReaderAt(), size, int64(checksumOffset))
	if err != nil {
		return fmt.Errorf("计算校验和失败: %w", err)
	}

	if err := p.acc.Write32(field, checksum); err != nil {
		return fmt.Errorf("写入校验和失败: %w", err)
	}

	p.log.WithField("checksum", fmt.Sprintf("0x%08X", checksum)).Debug("updated checksum")
	return nil
}
