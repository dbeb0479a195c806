package pe

import (
	"debug/pe"
	"testing"

	"github.com/ZacharyZcR/racerpatch/internal/pe/petest"
	"github.com/ZacharyZcR/racerpatch/internal/profile"
)

func TestGetSectionPermissions(t *testing.T) {
	tests := []struct {
		name string
		char uint32
		want string
	}{
		{
			name: "Read only",
			char: pe.IMAGE_SCN_MEM_READ,
			want: "R--",
		},
		{
			name: "Read Write",
			char: pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE,
			want: "RW-",
		},
		{
			name: "Read Execute",
			char: pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE,
			want: "R-X",
		},
		{
			name: "Read Write Execute (RWX - suspicious)",
			char: pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE,
			want: "RWX",
		},
		{
			name: "Write Execute",
			char: pe.IMAGE_SCN_MEM_WRITE | pe.IMAGE_SCN_MEM_EXECUTE,
			want: "-WX",
		},
		{
			name: "No permissions",
			char: 0,
			want: "---",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getSectionPermissions(tt.char)
			if got != tt.want {
				t.Errorf("getSectionPermissions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSubsystem(t *testing.T) {
	tests := []struct {
		name      string
		subsystem uint16
		want      string
	}{
		{
			name:      "Windows GUI",
			subsystem: pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
			want:      "Windows GUI",
		},
		{
			name:      "Windows Console",
			subsystem: pe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
			want:      "Windows 控制台",
		},
		{
			name:      "Native",
			subsystem: pe.IMAGE_SUBSYSTEM_NATIVE,
			want:      "Native",
		},
		{
			name:      "Unknown subsystem",
			subsystem: 0xFF,
			want:      "未知 (0xFF)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getSubsystem(tt.subsystem)
			if got != tt.want {
				t.Errorf("getSubsystem() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnalyzeUnpatched(t *testing.T) {
	path := petest.Racer().WriteFile(t)

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	info, err := NewAnalyzer(r).Analyze()
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if info.Architecture != "x86 (32位)" {
		t.Errorf("Architecture = %q", info.Architecture)
	}
	if info.ImageBase != 0x400000 || info.SizeOfImage != 0xAD0000 {
		t.Errorf("ImageBase = 0x%X SizeOfImage = 0x%X", info.ImageBase, info.SizeOfImage)
	}
	if info.Build != profile.Racer.Name {
		t.Errorf("Build = %q, want %q", info.Build, profile.Racer.Name)
	}
	if info.Section("hack") != nil {
		t.Error("unpatched image reports a hack section")
	}
	if s := info.Section(".text"); s == nil || s.Permissions != "R-X" {
		t.Errorf(".text = %+v, want R-X", s)
	}
	if info.Relocations == nil || info.Relocations.Rebasable() {
		t.Errorf("Relocations = %+v, want a fixed base", info.Relocations)
	}
}
