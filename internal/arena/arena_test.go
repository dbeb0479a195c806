package arena

import (
	"errors"
	"testing"

	"github.com/ZacharyZcR/racerpatch/internal/target"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		base     target.Address
		capacity uint32
		wantErr  bool
	}{
		{name: "hack section", base: 0xED0000, capacity: DefaultCapacity},
		{name: "ends at top of address space", base: 0xFFC00000, capacity: DefaultCapacity},
		{name: "past top of address space", base: 0xFFC00001, capacity: DefaultCapacity, wantErr: true},
		{name: "zero capacity", base: 0xED0000, capacity: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.base, tt.capacity)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (c.Next() != tt.base || c.Remaining() != tt.capacity) {
				t.Errorf("New() = next %s remaining %d", c.Next(), c.Remaining())
			}
		})
	}
}

func TestAllocMonotonicAndDisjoint(t *testing.T) {
	c, err := New(0xED0000, DefaultCapacity)
	if err != nil {
		t.Fatal(err)
	}

	sizes := []uint32{16, 25, 0x40000, 7, 7, 44, 27, 0, 1, 0x100000, 3}
	var regions []Region
	prev := c.Next()
	for _, size := range sizes {
		var r Region
		r, c, err = c.Alloc(size)
		if err != nil {
			t.Fatalf("Alloc(%d) error = %v", size, err)
		}
		if r.Start != prev {
			t.Errorf("Alloc(%d) start = %s, want %s", size, r.Start, prev)
		}
		if c.Next() < prev {
			t.Errorf("cursor moved backwards: %s -> %s", prev, c.Next())
		}
		prev = c.Next()
		regions = append(regions, r)
	}

	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if regions[i].Overlaps(regions[j]) {
				t.Errorf("regions %d %+v and %d %+v overlap", i, regions[i], j, regions[j])
			}
		}
	}

	var total uint32
	for _, s := range sizes {
		total += s
	}
	if c.Used() != total {
		t.Errorf("Used() = %d, want %d", c.Used(), total)
	}
}

func TestAllocExhausted(t *testing.T) {
	c, err := New(0xED0000, 32)
	if err != nil {
		t.Fatal(err)
	}

	_, c, err = c.Alloc(30)
	if err != nil {
		t.Fatal(err)
	}

	before := c
	_, after, err := c.Alloc(3)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Alloc() error = %v, want ErrExhausted", err)
	}
	if after != before {
		t.Errorf("failed Alloc moved the cursor: %s -> %s", before.Next(), after.Next())
	}

	// Exactly filling the arena is allowed.
	if _, c, err = c.Alloc(2); err != nil {
		t.Fatalf("Alloc() to capacity error = %v", err)
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", c.Remaining())
	}
	if _, _, err := c.Alloc(1); !errors.Is(err, ErrExhausted) {
		t.Errorf("Alloc() past capacity error = %v, want ErrExhausted", err)
	}
}

func TestAllocLeavesReceiverUntouched(t *testing.T) {
	c, _ := New(0xED0000, 64)
	_, next, err := c.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	if c.Next() != 0xED0000 {
		t.Errorf("receiver moved to %s", c.Next())
	}
	if next.Next() != 0xED000A {
		t.Errorf("returned cursor at %s, want 0xED000A", next.Next())
	}
}

func TestRegionOverlaps(t *testing.T) {
	a := Region{Start: 0x100, Size: 0x10}
	tests := []struct {
		name string
		b    Region
		want bool
	}{
		{name: "adjacent after", b: Region{Start: 0x110, Size: 4}, want: false},
		{name: "adjacent before", b: Region{Start: 0xF0, Size: 0x10}, want: false},
		{name: "inside", b: Region{Start: 0x104, Size: 2}, want: true},
		{name: "straddles end", b: Region{Start: 0x10F, Size: 4}, want: true},
		{name: "empty", b: Region{Start: 0x104, Size: 0}, want: false},
		{name: "top of address space", b: Region{Start: 0xFFFFFFF0, Size: 0x10}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}
