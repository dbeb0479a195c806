// Package profile holds the fixed addresses of every supported build.
//
// Install sites, section ranges and subroutine addresses only make sense for
// the exact binary they were taken from, so they live in one table keyed by
// the build's header timestamp. Supporting another build is a data change.
package profile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ZacharyZcR/racerpatch/internal/target"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedVersion is returned for a timestamp that is not in the table.
var ErrUnsupportedVersion = errors.New("不支持的版本")

// Site is an address range of original code that gets overwritten by a hook.
type Site struct {
	Start target.Address
	End   target.Address
}

// Len returns the size of the site in bytes.
func (s Site) Len() uint32 {
	return uint32(s.End - s.Start)
}

// TextureTable is a pointer table of 4bpp textures plus the loader call that
// passes their dimensions. The table starts with a 32-bit entry count.
type TextureTable struct {
	Label  string
	Table  target.Address
	Site   Site
	Width  uint32
	Height uint32

	// Dimensions of the textures shipped with the build.
	OriginalWidth  uint32
	OriginalHeight uint32
}

// Network holds the addresses used by the network upgrade patch.
type Network struct {
	Marker        target.Address
	MarkerValue   uint32
	Version       uint32
	MenuLevel     target.Address
	MenuHealth    target.Address
	GenerateTable target.Address
	Site          Site
}

// Audio holds the fields of the streaming audio source.
type Audio struct {
	BufferSize target.Address
	BitDepth   target.Address
	SampleRate target.Address
	ChunkSizes []target.Address
}

// Sprites holds the addresses used by the sprite loader replacement.
type Sprites struct {
	PathFormat   string
	Sprintf      target.Address
	LoadTGA      target.Address
	LoadOriginal target.Address
	Site         Site
	BufferSize   uint32
}

// Profile describes one supported build.
type Profile struct {
	Name       string
	Timestamp  uint32
	ImageBase  target.Address
	HeaderSize uint32

	// Sections in translation priority order.
	Sections        []target.Section
	FallbackSection string
	PatchSection    string

	Textures []TextureTable
	Network  Network
	Audio    Audio
	Sprites  Sprites
}

// Translator builds an address translator for the build's static sections.
func (p *Profile) Translator(log logrus.FieldLogger) *target.Translator {
	return target.NewTranslator(p.ImageBase, log, p.Sections...)
}

var profiles = map[uint32]*Profile{}

func register(p *Profile) {
	if _, ok := profiles[p.Timestamp]; ok {
		panic(fmt.Sprintf("duplicate profile timestamp 0x%08X", p.Timestamp))
	}
	profiles[p.Timestamp] = p
}

// Lookup returns the profile for a header timestamp.
func Lookup(timestamp uint32) (*Profile, error) {
	p, ok := profiles[timestamp]
	if !ok {
		return nil, fmt.Errorf("%w (时间戳 0x%08X)", ErrUnsupportedVersion, timestamp)
	}
	return p, nil
}

// Known returns the supported timestamps in ascending order.
func Known() []uint32 {
	var ts []uint32
	for t := range profiles {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts
}
