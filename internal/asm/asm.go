// Package asm hand-assembles the small, fixed set of 32-bit x86 instructions
// the patches need. There is no decoder and no relocation pass: addresses are
// assigned in increasing order as code is emitted, so every branch
// displacement is computed when the instruction is appended.
package asm

import (
	"encoding/binary"

	"github.com/ZacharyZcR/racerpatch/internal/target"
)

// Reg is a 32-bit general purpose register in ModRM encoding order.
type Reg byte

const (
	EAX Reg = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

var regNames = [...]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "r?"
}

// Op tags an emitted instruction.
type Op string

const (
	OpNop     Op = "nop"
	OpPush    Op = "push"
	OpPop     Op = "pop"
	OpPushImm Op = "push imm32"
	OpAddESP  Op = "add esp"
	OpTest    Op = "test"
	OpMov     Op = "mov"
	OpShr     Op = "shr"
	OpJmp     Op = "jmp"
	OpJnz     Op = "jnz"
	OpCall    Op = "call"
	OpRet     Op = "ret"
	OpData    Op = "data"
)

// Inst is one emitted instruction.
type Inst struct {
	Op    Op
	Addr  target.Address
	Bytes []byte
}

// End returns the address right after the instruction.
func (i Inst) End() target.Address {
	return i.Addr.Add(uint32(len(i.Bytes)))
}

// Displacement returns the rel32 that reaches dst from a branch whose
// displacement field ends at next. next is the address after the
// displacement, not the start of the instruction.
func Displacement(next, dst target.Address) uint32 {
	return uint32(dst) - uint32(next)
}

// Builder appends instructions starting at a fixed address.
type Builder struct {
	start target.Address
	next  target.Address
	insts []Inst
}

// NewBuilder starts a sequence at start.
func NewBuilder(start target.Address) *Builder {
	return &Builder{start: start, next: start}
}

// Start returns the address of the first instruction.
func (b *Builder) Start() target.Address {
	return b.start
}

// Next returns the address following the last instruction.
func (b *Builder) Next() target.Address {
	return b.next
}

// Len returns the number of bytes emitted so far.
func (b *Builder) Len() uint32 {
	return uint32(b.next - b.start)
}

// Insts returns the emitted instructions in order.
func (b *Builder) Insts() []Inst {
	return append([]Inst(nil), b.insts...)
}

// Bytes returns the encoded sequence.
func (b *Builder) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	for _, inst := range b.insts {
		out = append(out, inst.Bytes...)
	}
	return out
}

func (b *Builder) emit(op Op, code ...byte) *Builder {
	b.insts = append(b.insts, Inst{Op: op, Addr: b.next, Bytes: code})
	b.next = b.next.Add(uint32(len(code)))
	return b
}

// rel emits opcode bytes followed by a rel32 reaching dst.
func (b *Builder) rel(op Op, dst target.Address, opcode ...byte) *Builder {
	code := make([]byte, len(opcode)+4)
	copy(code, opcode)
	next := b.next.Add(uint32(len(code)))
	binary.LittleEndian.PutUint32(code[len(opcode):], Displacement(next, dst))
	return b.emit(op, code...)
}

func imm32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}
