package target

import "encoding/binary"

// Accessor reads and writes little-endian scalars through a Target.
type Accessor struct {
	t Target
}

// NewAccessor wraps t.
func NewAccessor(t Target) *Accessor {
	return &Accessor{t: t}
}

// Target returns the wrapped target.
func (a *Accessor) Target() Target {
	return a.t
}

func (a *Accessor) Read8(addr Address) (uint8, error) {
	b, err := a.t.Read(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (a *Accessor) Read16(addr Address) (uint16, error) {
	b, err := a.t.Read(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (a *Accessor) Read32(addr Address) (uint32, error) {
	b, err := a.t.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (a *Accessor) Write8(addr Address, v uint8) error {
	return a.t.Write(addr, []byte{v})
}

func (a *Accessor) Write16(addr Address, v uint16) error {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return a.t.Write(addr, b)
}

func (a *Accessor) Write32(addr Address, v uint32) error {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return a.t.Write(addr, b)
}

// Add16 adds delta to the 16-bit value at addr. Overflow wraps.
func (a *Accessor) Add16(addr Address, delta uint16) error {
	v, err := a.Read16(addr)
	if err != nil {
		return err
	}
	return a.Write16(addr, v+delta)
}

// Add32 adds delta to the 32-bit value at addr. Overflow wraps.
func (a *Accessor) Add32(addr Address, delta uint32) error {
	v, err := a.Read32(addr)
	if err != nil {
		return err
	}
	return a.Write32(addr, v+delta)
}
