package asm

import "github.com/ZacharyZcR/racerpatch/internal/target"

// Nop emits 90.
func (b *Builder) Nop() *Builder {
	return b.emit(OpNop, 0x90)
}

// Nops emits n single-byte NOPs.
func (b *Builder) Nops(n int) *Builder {
	for i := 0; i < n; i++ {
		b.Nop()
	}
	return b
}

// Push emits push r32.
func (b *Builder) Push(r Reg) *Builder {
	return b.emit(OpPush, 0x50+byte(r))
}

// Pop emits pop r32.
func (b *Builder) Pop(r Reg) *Builder {
	return b.emit(OpPop, 0x58+byte(r))
}

// PushImm32 emits push imm32.
func (b *Builder) PushImm32(v uint32) *Builder {
	return b.emit(OpPushImm, append([]byte{0x68}, imm32(v)...)...)
}

// AddESP emits add esp, imm32. Negative values reserve stack.
func (b *Builder) AddESP(n int32) *Builder {
	return b.emit(OpAddESP, append([]byte{0x81, 0xC4}, imm32(uint32(n))...)...)
}

// AddESP8 emits the short form add esp, imm8.
func (b *Builder) AddESP8(n int8) *Builder {
	return b.emit(OpAddESP, 0x83, 0xC4, byte(n))
}

// Test emits test r32, r32, setting ZF when the register is zero.
func (b *Builder) Test(r Reg) *Builder {
	return b.emit(OpTest, 0x85, modrmReg(r, r))
}

// MovRegReg emits mov dst, src.
func (b *Builder) MovRegReg(dst, src Reg) *Builder {
	return b.emit(OpMov, 0x89, modrmReg(src, dst))
}

// MovRegMem8 emits mov dst, [base+disp8].
func (b *Builder) MovRegMem8(dst, base Reg, disp int8) *Builder {
	return b.emit(OpMov, append([]byte{0x8B}, memDisp8(byte(dst), base, disp)...)...)
}

// ShrWordMem8 emits shr word [base+disp8], imm8.
func (b *Builder) ShrWordMem8(base Reg, disp int8, count uint8) *Builder {
	code := append([]byte{0x66, 0xC1}, memDisp8(5, base, disp)...)
	return b.emit(OpShr, append(code, count)...)
}

// Jmp emits jmp rel32.
func (b *Builder) Jmp(dst target.Address) *Builder {
	return b.rel(OpJmp, dst, 0xE9)
}

// Jnz emits the near form jnz rel32.
func (b *Builder) Jnz(dst target.Address) *Builder {
	return b.rel(OpJnz, dst, 0x0F, 0x85)
}

// Call emits call rel32.
func (b *Builder) Call(dst target.Address) *Builder {
	return b.rel(OpCall, dst, 0xE8)
}

// Ret emits a near return.
func (b *Builder) Ret() *Builder {
	return b.emit(OpRet, 0xC3)
}

// Raw places data bytes in the sequence.
func (b *Builder) Raw(data []byte) *Builder {
	return b.emit(OpData, append([]byte(nil), data...)...)
}

// CString places s followed by a terminating zero.
func (b *Builder) CString(s string) *Builder {
	return b.emit(OpData, append([]byte(s), 0)...)
}

func modrmReg(reg, rm Reg) byte {
	return 0xC0 | byte(reg)<<3 | byte(rm)
}

// memDisp8 encodes a [base+disp8] operand. ESP as base needs a SIB byte.
func memDisp8(reg byte, base Reg, disp int8) []byte {
	modrm := 0x40 | reg<<3 | byte(base)
	if base == ESP {
		return []byte{modrm, 0x24, byte(disp)}
	}
	return []byte{modrm, byte(disp)}
}
