// Package target provides byte-level access to the image being patched.
//
// Two backends share the same contract: File edits an executable on disk and
// translates every virtual address into a file offset, Process writes directly
// into the address space of a suspended process where virtual addresses need
// no translation.
package target

import (
	"errors"
	"fmt"
)

// Address is a 32-bit virtual address inside the patched image.
type Address uint32

// String formats the address the way it is written in disassembly listings.
func (a Address) String() string {
	return fmt.Sprintf("0x%08X", uint32(a))
}

// Add returns the address n bytes after a.
func (a Address) Add(n uint32) Address {
	return a + Address(n)
}

// Offset is a position inside the file backing the image.
type Offset int64

// String formats the offset in hex.
func (o Offset) String() string {
	return fmt.Sprintf("0x%X", int64(o))
}

// ErrUnsupportedPlatform is returned by backends that do not exist on the
// running operating system.
var ErrUnsupportedPlatform = errors.New("当前平台不支持该目标后端")

// Reader reads raw bytes at a virtual address.
type Reader interface {
	Read(addr Address, size int) ([]byte, error)
}

// Writer writes raw bytes at a virtual address.
type Writer interface {
	Write(addr Address, data []byte) error
}

// Target is the I/O capability every patch operation works against.
// Implementations perform no caching; every call positions independently.
type Target interface {
	Reader
	Writer
	Close() error
}
