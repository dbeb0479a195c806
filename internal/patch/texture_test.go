package patch

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/ZacharyZcR/racerpatch/internal/asset"
	"github.com/ZacharyZcR/racerpatch/internal/pe/petest"
	"github.com/ZacharyZcR/racerpatch/internal/profile"
	"github.com/ZacharyZcR/racerpatch/internal/target"
	"github.com/ZacharyZcR/racerpatch/internal/target/targettest"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/arch/x86/x86asm"
)

// smallFont is font0 with 4x2 textures so payloads stay tiny.
var smallFont = profile.TextureTable{
	Label:          "font0",
	Table:          0x4BF91C,
	Site:           profile.Site{Start: 0x42D745, End: 0x42D753},
	Width:          4,
	Height:         2,
	OriginalWidth:  2,
	OriginalHeight: 2,
}

var oldTextures = []target.Address{0x4C0000, 0x4C1000}

func setupTable(t *testing.T, tbl profile.TextureTable, ptrs []target.Address) *targettest.Memory {
	t.Helper()
	mem := racerMemory(t, petest.Racer())
	put32(mem, tbl.Table, uint32(len(ptrs)))
	for i, p := range ptrs {
		put32(mem, tableSlot(tbl, i), uint32(p))
	}
	mem.ResetWrites()
	return mem
}

// writeAssets writes a distinct payload per texture and returns them packed.
func writeAssets(t *testing.T, dir string, tbl profile.TextureTable, count int) [][]byte {
	t.Helper()
	l := asset.NewLoader(dir, "")
	var packed [][]byte
	for i := 0; i < count; i++ {
		var raw []byte
		for p := 0; p < int(tbl.Width*tbl.Height); p++ {
			raw = append(raw, byte((i*3+p)<<4), 0xFF)
		}
		if err := os.WriteFile(l.Path(tbl.Label, i), raw, 0666); err != nil {
			t.Fatal(err)
		}
		want, err := asset.Pack4bpp(raw, tbl.Width, tbl.Height)
		if err != nil {
			t.Fatal(err)
		}
		packed = append(packed, want)
	}
	return packed
}

func TestTextureTable(t *testing.T) {
	mem := setupTable(t, smallFont, oldTextures)
	dir := t.TempDir()
	want := writeAssets(t, dir, smallFont, len(oldTextures))

	ctx := newContext(t, mem)
	c := newArena(t, mem, 0x1000)
	op := TextureTable{Table: smallFont, Assets: asset.NewLoader(dir, "")}

	next, err := op.Apply(ctx, c)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	// 16 NOPs, then the cave.
	if diff := cmp.Diff(bytes.Repeat([]byte{0x90}, caveAlign), mem.Bytes(arenaBase, caveAlign)); diff != "" {
		t.Errorf("alignment mismatch (-want +got):\n%s", diff)
	}
	cave := arenaBase.Add(caveAlign)
	wantCave := []byte{
		0x68, 0x02, 0x00, 0x00, 0x00,
		0x68, 0x04, 0x00, 0x00, 0x00,
		0x68, 0x02, 0x00, 0x00, 0x00,
		0x68, 0x04, 0x00, 0x00, 0x00,
	}
	if diff := cmp.Diff(wantCave, mem.Bytes(cave, len(wantCave))); diff != "" {
		t.Errorf("cave pushes mismatch (-want +got):\n%s", diff)
	}
	if op, dst := branchTarget(t, mem, cave.Add(20)); op != x86asm.JMP || dst != smallFont.Site.End {
		t.Errorf("cave exit = %s %s, want JMP %s", op, dst, smallFont.Site.End)
	}

	// Hook: jmp into the cave, rest of the site NOPs.
	if op, dst := branchTarget(t, mem, smallFont.Site.Start); op != x86asm.JMP || dst != cave {
		t.Errorf("hook = %s %s, want JMP %s", op, dst, cave)
	}
	pad := smallFont.Site.Start.Add(5)
	if diff := cmp.Diff(bytes.Repeat([]byte{0x90}, 9), mem.Bytes(pad, 9)); diff != "" {
		t.Errorf("hook padding mismatch (-want +got):\n%s", diff)
	}

	// Table entries point into the arena at the packed payloads.
	payload := cave.Add(25)
	for i := range oldTextures {
		got := target.Address(get32(mem, tableSlot(smallFont, i)))
		if got != payload {
			t.Errorf("slot %d = %s, want %s", i, got, payload)
		}
		if diff := cmp.Diff(want[i], mem.Bytes(got, len(want[i]))); diff != "" {
			t.Errorf("texture %d mismatch (-want +got):\n%s", i, diff)
		}
		payload = payload.Add(asset.PackedSize(smallFont.Width, smallFont.Height))
	}

	if next.Next() != payload {
		t.Errorf("cursor = %s, want %s", next.Next(), payload)
	}
	if n := get32(mem, smallFont.Table); n != uint32(len(oldTextures)) {
		t.Errorf("table count changed to %d", n)
	}
}

func TestTextureTableWritesNothingOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		assets   int
		capacity uint32
		wantErr  error
	}{
		{name: "missing payload", assets: 1, capacity: 0x1000, wantErr: asset.ErrMissing},
		{name: "arena too small for payloads", assets: 2, capacity: caveAlign + 25 + 4, wantErr: arena.ErrExhausted},
		{name: "arena too small for cave", assets: 2, capacity: caveAlign + 10, wantErr: arena.ErrExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := setupTable(t, smallFont, oldTextures)
			dir := t.TempDir()
			writeAssets(t, dir, smallFont, tt.assets)

			ctx := newContext(t, mem)
			c := newArena(t, mem, tt.capacity)
			op := TextureTable{Table: smallFont, Assets: asset.NewLoader(dir, "")}

			_, err := op.Apply(ctx, c)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if w := mem.Writes(); len(w) != 0 {
				t.Errorf("Apply() wrote %v before failing", w)
			}
		})
	}
}

func TestTextureTableRacerDimensions(t *testing.T) {
	font := profile.Racer.Textures[0]
	mem := setupTable(t, font, oldTextures[:1])
	dir := t.TempDir()
	writeAssets(t, dir, font, 1)

	ctx := newContext(t, mem)
	c := newArena(t, mem, arena.DefaultCapacity)

	next, err := TextureTable{Table: font, Assets: asset.NewLoader(dir, "")}.Apply(ctx, c)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	// 512x1024 at 4 bits per pixel.
	if used := next.Used(); used != caveAlign+25+512*1024/2 {
		t.Errorf("arena used = %d", used)
	}
	cave := arenaBase.Add(caveAlign)
	insts := listing(t, mem, cave, 4)
	for i, want := range []uint32{1024, 512, 1024, 512} {
		if imm, ok := insts[i].Args[0].(x86asm.Imm); !ok || uint32(imm) != want {
			t.Errorf("push %d = %v, want %d", i, insts[i].Args[0], want)
		}
	}
}

func TestDumpTextureTable(t *testing.T) {
	mem := setupTable(t, smallFont, oldTextures)
	if err := mem.Write(oldTextures[0], []byte{0x0F, 0xF0}); err != nil {
		t.Fatal(err)
	}
	mem.ResetWrites()

	dir := t.TempDir()
	n, err := DumpTextureTable(newContext(t, mem), smallFont, dir)
	if err != nil {
		t.Fatalf("DumpTextureTable() error = %v", err)
	}
	if n != len(oldTextures) {
		t.Errorf("DumpTextureTable() = %d, want %d", n, len(oldTextures))
	}
	for i := range oldTextures {
		if _, err := os.Stat(asset.DumpPath(dir, smallFont.Label, i)); err != nil {
			t.Errorf("dump %d: %v", i, err)
		}
	}
	if w := mem.Writes(); len(w) != 0 {
		t.Errorf("DumpTextureTable() wrote %v", w)
	}
}
