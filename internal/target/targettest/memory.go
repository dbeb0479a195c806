// Package targettest provides an in-memory Target for tests.
package targettest

import (
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/target"
)

// Write records one call to Memory.Write.
type Write struct {
	Addr target.Address
	Len  int
}

// End returns the first address after the write.
func (w Write) End() target.Address {
	return w.Addr.Add(uint32(w.Len))
}

type region struct {
	base target.Address
	data []byte
}

// Memory is a set of mapped regions addressed by virtual address, like the
// address space of a process. Accesses outside a region fail.
type Memory struct {
	regions []*region
	writes  []Write
	closed  bool
}

// New returns an empty address space.
func New() *Memory {
	return &Memory{}
}

// Map adds a zeroed region.
func (m *Memory) Map(base target.Address, size uint32) {
	m.regions = append(m.regions, &region{base: base, data: make([]byte, size)})
}

// Load maps a region holding a copy of data.
func (m *Memory) Load(base target.Address, data []byte) {
	m.regions = append(m.regions, &region{base: base, data: append([]byte(nil), data...)})
}

func (m *Memory) find(addr target.Address, size int) ([]byte, error) {
	for _, r := range m.regions {
		if addr < r.base {
			continue
		}
		start := uint64(addr - r.base)
		if start+uint64(size) <= uint64(len(r.data)) {
			return r.data[start : start+uint64(size)], nil
		}
	}
	return nil, fmt.Errorf("%w: %s (+%d)", target.ErrUnmapped, addr, size)
}

// Read implements target.Reader.
func (m *Memory) Read(addr target.Address, size int) ([]byte, error) {
	b, err := m.find(addr, size)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// Write implements target.Writer.
func (m *Memory) Write(addr target.Address, data []byte) error {
	b, err := m.find(addr, len(data))
	if err != nil {
		return err
	}
	copy(b, data)
	m.writes = append(m.writes, Write{Addr: addr, Len: len(data)})
	return nil
}

// Close marks the memory closed.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	return m.closed
}

// Writes returns every write in order.
func (m *Memory) Writes() []Write {
	return append([]Write(nil), m.writes...)
}

// ResetWrites forgets recorded writes.
func (m *Memory) ResetWrites() {
	m.writes = nil
}

// Touched reports whether any write intersected [start, end).
func (m *Memory) Touched(start, end target.Address) bool {
	for _, w := range m.writes {
		if w.Addr < end && w.End() > start {
			return true
		}
	}
	return false
}

// Bytes returns a copy of the mapped bytes or panics; for assertions only.
func (m *Memory) Bytes(addr target.Address, size int) []byte {
	b, err := m.Read(addr, size)
	if err != nil {
		panic(err)
	}
	return b
}
