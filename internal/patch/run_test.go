package patch

import (
	"debug/pe"
	"errors"
	"os"
	"testing"

	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/ZacharyZcR/racerpatch/internal/asset"
	rpe "github.com/ZacharyZcR/racerpatch/internal/pe"
	"github.com/ZacharyZcR/racerpatch/internal/pe/petest"
	"github.com/ZacharyZcR/racerpatch/internal/profile"
	"github.com/ZacharyZcR/racerpatch/internal/target"
	"github.com/ZacharyZcR/racerpatch/internal/target/targettest"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeProcess struct {
	*targettest.Memory
	allocAt    target.Address
	resumed    bool
	terminated bool
}

func (p *fakeProcess) Alloc(size uint32) (target.Address, error) {
	p.Map(p.allocAt, size)
	return p.allocAt, nil
}

func (p *fakeProcess) Resume() error {
	p.resumed = true
	return nil
}

func (p *fakeProcess) Terminate() error {
	p.terminated = true
	return nil
}

func allOptions(dir string) Options {
	network := DefaultNetworkUpgrades()
	audio := DefaultAudioQuality()
	return Options{
		Assets:   asset.NewLoader(dir, ""),
		Textures: true,
		Network:  &network,
		Audio:    &audio,
		Sprites:  true,
	}
}

func TestOperationsOrder(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "everything",
			opts: allOptions(""),
			want: []string{"font0", "font1", "font2", "font3", "font4", "network", "audio", "sprites"},
		},
		{
			name: "audio only",
			opts: Options{Audio: &AudioQuality{}},
			want: []string{"audio"},
		},
		{
			name: "nothing",
			opts: Options{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, op := range Operations(profile.Racer, tt.opts) {
				got = append(got, op.Name())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Operations() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPatchLive(t *testing.T) {
	mem := racerMemory(t, petest.Racer())
	font := profile.Racer.Textures[0]
	put32(mem, font.Table, 1)
	put32(mem, tableSlot(font, 0), 0x4C0000)
	mem.ResetWrites()

	dir := t.TempDir()
	writeAssets(t, dir, font, 1)

	proc := &fakeProcess{Memory: mem, allocAt: 0x20000000}
	logger, _ := test.NewNullLogger()

	report, err := Patch(NewLiveHost(proc, 0x400000, logger), allOptions(dir), logger)
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if !proc.resumed || proc.terminated {
		t.Errorf("resumed = %v terminated = %v, want resumed only", proc.resumed, proc.terminated)
	}
	if report.Arena.Base() != proc.allocAt {
		t.Errorf("arena base = %s, want %s", report.Arena.Base(), proc.allocAt)
	}

	// Regions are disjoint, in order, and add up to the arena usage.
	var total uint32
	next := proc.allocAt
	var regions []arena.Region
	for _, r := range report.Results {
		if r.Start != next {
			t.Errorf("%s starts at %s, want %s", r.Name, r.Start, next)
		}
		region := arena.Region{Start: r.Start, Size: r.Used}
		for _, prev := range regions {
			if region.Overlaps(prev) {
				t.Errorf("%s overlaps %v", r.Name, prev)
			}
		}
		regions = append(regions, region)
		next = next.Add(r.Used)
		total += r.Used
	}
	if total != report.Arena.Used() {
		t.Errorf("results add up to %d, arena used %d", total, report.Arena.Used())
	}
	if got := report.Results[len(report.Results)-1].Name; got != "sprites" {
		t.Errorf("last operation = %s, want sprites", got)
	}

	if get32(mem, tableSlot(font, 0)) == 0x4C0000 {
		t.Error("font0 still points at the original texture")
	}

	// Nothing outside the arena, the install sites and the data fields was written.
	for _, w := range mem.Writes() {
		if w.Addr >= proc.allocAt {
			continue
		}
		if w.Addr < 0x401000 {
			t.Errorf("header write at %s", w.Addr)
		}
	}
}

func TestPatchLiveUnsupported(t *testing.T) {
	img := petest.Racer()
	img.Timestamp = 0x11111111
	mem := racerMemory(t, img)
	proc := &fakeProcess{Memory: mem, allocAt: 0x20000000}
	logger, _ := test.NewNullLogger()

	_, err := Patch(NewLiveHost(proc, 0x400000, logger), allOptions(t.TempDir()), logger)
	if !errors.Is(err, profile.ErrUnsupportedVersion) {
		t.Fatalf("Patch() error = %v, want ErrUnsupportedVersion", err)
	}
	if !proc.terminated || proc.resumed {
		t.Errorf("resumed = %v terminated = %v, want terminated only", proc.resumed, proc.terminated)
	}
	if w := mem.Writes(); len(w) != 0 {
		t.Errorf("Patch() wrote %v", w)
	}
}

func TestPatchLiveStopsAtFailure(t *testing.T) {
	mem := racerMemory(t, petest.Racer())
	put32(mem, profile.Racer.Textures[0].Table, 1)
	mem.ResetWrites()

	proc := &fakeProcess{Memory: mem, allocAt: 0x20000000}
	logger, _ := test.NewNullLogger()

	// No payload files.
	report, err := Patch(NewLiveHost(proc, 0x400000, logger), allOptions(t.TempDir()), logger)
	if !errors.Is(err, asset.ErrMissing) {
		t.Fatalf("Patch() error = %v, want ErrMissing", err)
	}
	if !proc.terminated {
		t.Error("process not terminated after failure")
	}
	if len(report.Results) != 0 {
		t.Errorf("results = %v, want none", report.Results)
	}
}

func TestPatchFile(t *testing.T) {
	path := petest.Racer().WriteFile(t)
	logger, _ := test.NewNullLogger()

	p, err := rpe.NewPatcher(path, 0x400000, logger)
	if err != nil {
		t.Fatal(err)
	}
	report, err := Patch(p, allOptions(t.TempDir()), logger)
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	if report.Arena.Base() != 0xED0000 {
		t.Errorf("arena base = %s, want 0x00ED0000", report.Arena.Base())
	}

	f, err := pe.Open(path)
	if err != nil {
		t.Fatalf("patched file does not parse: %v", err)
	}
	defer f.Close()
	if len(f.Sections) != 5 || f.Section("hack") == nil {
		t.Fatalf("sections = %d, want 5 with hack", len(f.Sections))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Hooks at their .text file offsets.
	text := profile.Racer.Sections[3]
	for _, site := range []profile.Site{
		profile.Racer.Sprites.Site,
		profile.Racer.Network.Site,
		profile.Racer.Textures[0].Site,
	} {
		off := int64(site.Start) + text.Delta()
		if op := raw[off]; op != 0xE9 && op != 0xE8 {
			t.Errorf("no branch at %s (offset 0x%X): 0x%02X", site.Start, off, op)
		}
	}

	// The arena contents land in the appended section.
	hack := f.Section("hack")
	data, err := hack.Data()
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 0x90 {
		t.Errorf("arena starts with 0x%02X, want the alignment NOPs", data[0])
	}
}
