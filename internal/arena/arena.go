// Package arena implements the patch arena: one bump-pointer cursor over a
// fixed-capacity region that every patch operation allocates from in turn.
package arena

import (
	"errors"
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/target"
)

// DefaultCapacity is the size of the region appended to the image.
const DefaultCapacity = 4 * 1024 * 1024

// ErrExhausted is returned when an allocation would pass the end of the arena.
var ErrExhausted = errors.New("补丁区域空间不足")

// Region is one allocation.
type Region struct {
	Start target.Address
	Size  uint32
}

// End returns the first address after the region.
func (r Region) End() target.Address {
	return r.Start.Add(r.Size)
}

// Overlaps reports whether r and o share at least one byte.
func (r Region) Overlaps(o Region) bool {
	if r.Size == 0 || o.Size == 0 {
		return false
	}
	rs, os := uint64(r.Start), uint64(o.Start)
	return rs < os+uint64(o.Size) && os < rs+uint64(r.Size)
}

// Cursor is the arena's write position. It is a value: Alloc returns the
// advanced cursor and leaves the receiver untouched, so the position is
// threaded explicitly through every operation and can only move forward.
type Cursor struct {
	base     target.Address
	next     target.Address
	capacity uint32
}

// New creates a cursor over [base, base+capacity).
func New(base target.Address, capacity uint32) (Cursor, error) {
	if capacity == 0 || uint64(base)+uint64(capacity) > 1<<32 {
		return Cursor{}, fmt.Errorf("补丁区域 %s+0x%X 无效", base, capacity)
	}
	return Cursor{base: base, next: base, capacity: capacity}, nil
}

// Next returns the next free address.
func (c Cursor) Next() target.Address {
	return c.next
}

// Base returns the start of the arena.
func (c Cursor) Base() target.Address {
	return c.base
}

// Capacity returns the arena size.
func (c Cursor) Capacity() uint32 {
	return c.capacity
}

// Used returns the number of bytes allocated so far.
func (c Cursor) Used() uint32 {
	return uint32(c.next - c.base)
}

// Remaining returns the number of bytes still available.
func (c Cursor) Remaining() uint32 {
	return c.capacity - c.Used()
}

// Alloc reserves size bytes and returns the region and the advanced cursor.
// On failure the returned cursor equals the receiver.
func (c Cursor) Alloc(size uint32) (Region, Cursor, error) {
	if size > c.Remaining() {
		return Region{}, c, fmt.Errorf("%w: 需要 %d 字节, 剩余 %d 字节", ErrExhausted, size, c.Remaining())
	}
	r := Region{Start: c.next, Size: size}
	c.next = c.next.Add(size)
	return r, c, nil
}
