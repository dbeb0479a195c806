package target

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	// ErrBelowImageBase means the caller produced an address that cannot
	// belong to the image at all.
	ErrBelowImageBase = errors.New("地址低于镜像基址")
	// ErrUnmapped means the address is inside the image but outside every
	// known section.
	ErrUnmapped = errors.New("地址不在任何已知节区内")
	// ErrFallback accompanies an offset produced by the legacy resource
	// fallback. The offset is usable but only guessed.
	ErrFallback = errors.New("地址使用了资源节区回退映射")
)

// Section describes one region of the image in both coordinate systems.
type Section struct {
	Name         string
	VirtualStart Address
	VirtualSize  uint32
	FileStart    Offset
}

// Contains reports whether addr lies inside the section's virtual range.
func (s Section) Contains(addr Address) bool {
	return addr >= s.VirtualStart && uint64(addr) < uint64(s.VirtualStart)+uint64(s.VirtualSize)
}

// Delta is the value added to a virtual address to obtain its file offset.
func (s Section) Delta() int64 {
	return int64(s.FileStart) - int64(s.VirtualStart)
}

// Address maps a file offset back into the section's virtual range.
func (s Section) Address(off Offset) Address {
	return Address(int64(off) - s.Delta())
}

// HeaderSection covers the image headers, which sit at file offset zero.
func HeaderSection(imageBase Address, size uint32) Section {
	return Section{Name: "headers", VirtualStart: imageBase, VirtualSize: size}
}

// Translator maps virtual addresses to file offsets using a list of
// sections checked in priority order; the first match wins.
type Translator struct {
	imageBase Address
	sections  []Section
	fallback  *Section
	log       logrus.FieldLogger
}

// NewTranslator creates a translator. Sections are checked in the order given.
func NewTranslator(imageBase Address, log logrus.FieldLogger, sections ...Section) *Translator {
	return &Translator{
		imageBase: imageBase,
		sections:  append([]Section(nil), sections...),
		log:       log,
	}
}

// ImageBase returns the load address the translator was built for.
func (t *Translator) ImageBase() Address {
	return t.imageBase
}

// Add registers a section with the highest priority.
func (t *Translator) Add(s Section) {
	t.sections = append([]Section{s}, t.sections...)
}

// Sections returns the sections in priority order.
func (t *Translator) Sections() []Section {
	return append([]Section(nil), t.sections...)
}

// EnableFallback reproduces the old behavior of mapping unknown addresses
// with the delta of the named section. Every use is logged as a warning and
// reported with ErrFallback.
func (t *Translator) EnableFallback(name string) error {
	for i := range t.sections {
		if t.sections[i].Name == name {
			s := t.sections[i]
			t.fallback = &s
			return nil
		}
	}
	return fmt.Errorf("回退节区 %q 不存在", name)
}

// Lookup returns the section that owns addr.
func (t *Translator) Lookup(addr Address) (Section, error) {
	if addr < t.imageBase {
		return Section{}, fmt.Errorf("%w: %s < %s", ErrBelowImageBase, addr, t.imageBase)
	}
	for _, s := range t.sections {
		if s.Contains(addr) {
			return s, nil
		}
	}
	return Section{}, fmt.Errorf("%w: %s", ErrUnmapped, addr)
}

// Translate returns the file offset for addr.
func (t *Translator) Translate(addr Address) (Offset, error) {
	s, err := t.Lookup(addr)
	if err == nil {
		return Offset(int64(addr) + s.Delta()), nil
	}
	if t.fallback == nil || !errors.Is(err, ErrUnmapped) {
		return 0, err
	}

	off := int64(addr) + t.fallback.Delta()
	if off < 0 {
		return 0, err
	}
	t.log.WithFields(logrus.Fields{
		"addr":    addr.String(),
		"section": t.fallback.Name,
		"offset":  Offset(off).String(),
	}).Warn("address outside known sections, using legacy fallback")
	return Offset(off), fmt.Errorf("%w: %s -> %s", ErrFallback, addr, Offset(off))
}
