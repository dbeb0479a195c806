package profile

import "github.com/ZacharyZcR/racerpatch/internal/target"

// Racer is the patched US release (swep1rcr.exe).
var Racer = &Profile{
	Name:       "swep1rcr.exe (US)",
	Timestamp:  0x3C60692C,
	ImageBase:  0x00400000,
	HeaderSize: 0x400,

	Sections: []target.Section{
		{Name: ".rsrc", VirtualStart: 0x00ECE000, VirtualSize: 0x000017B8, FileStart: 0x000D3800},
		{Name: ".data", VirtualStart: 0x004B2000, VirtualSize: 0x00023600, FileStart: 0x000B0200},
		{Name: ".rdata", VirtualStart: 0x004AC000, VirtualSize: 0x000054A2, FileStart: 0x000AAC00},
		{Name: ".text", VirtualStart: 0x00401000, VirtualSize: 0x000AA750, FileStart: 0x00000400},
		target.HeaderSection(0x00400000, 0x400),
	},
	FallbackSection: ".rsrc",
	PatchSection:    "hack",

	Textures: []TextureTable{
		{Label: "font0", Table: 0x4BF91C, Site: Site{Start: 0x42D745, End: 0x42D753}, Width: 512, Height: 1024, OriginalWidth: 64, OriginalHeight: 128},
		{Label: "font1", Table: 0x4BF7E4, Site: Site{Start: 0x42D786, End: 0x42D794}, Width: 512, Height: 1024, OriginalWidth: 64, OriginalHeight: 128},
		{Label: "font2", Table: 0x4BF84C, Site: Site{Start: 0x42D7C7, End: 0x42D7D5}, Width: 512, Height: 1024, OriginalWidth: 64, OriginalHeight: 128},
		{Label: "font3", Table: 0x4BF8B4, Site: Site{Start: 0x42D808, End: 0x42D816}, Width: 512, Height: 1024, OriginalWidth: 64, OriginalHeight: 128},
		{Label: "font4", Table: 0x4BF984, Site: Site{Start: 0x42D849, End: 0x42D857}, Width: 512, Height: 1024, OriginalWidth: 64, OriginalHeight: 128},
	},

	Network: Network{
		Marker:        0x4AF9B0,
		MarkerValue:   0x1337C0DE,
		Version:       0x00000000,
		MenuLevel:     0x45CFC6,
		MenuHealth:    0x45CFCB,
		GenerateTable: 0x449D00,
		Site:          Site{Start: 0x45B765, End: 0x45B76C},
	},

	Audio: Audio{
		BufferSize: 0x423215,
		BitDepth:   0x42321A,
		SampleRate: 0x42321E,
		ChunkSizes: []target.Address{0x423549, 0x42354E, 0x423555},
	},

	Sprites: Sprites{
		PathFormat:   `data\sprites\sprite-%d.tga`,
		Sprintf:      0x49EB80,
		LoadTGA:      0x4114D0,
		LoadOriginal: 0x446CA0,
		Site:         Site{Start: 0x446FB0, End: 0x446FB5},
		BufferSize:   0x400,
	},
}

func init() {
	register(Racer)
}
