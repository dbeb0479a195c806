package patch

import (
	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/ZacharyZcR/racerpatch/internal/asm"
)

// SpriteLoader replaces the sprite loader with one that first tries
// data\sprites\sprite-<index>.tga and falls back to the original sprite.
// TGA sprites are twice the size, so their dimensions are halved after a
// successful load.
type SpriteLoader struct{}

// Name implements Operation.
func (SpriteLoader) Name() string {
	return "sprites"
}

// Apply implements Operation.
func (SpriteLoader) Apply(ctx *Context, c arena.Cursor) (arena.Cursor, error) {
	s := ctx.Profile.Sprites

	format, c, err := assemble(c, func(b *asm.Builder) {
		b.CString(s.PathFormat)
	})
	if err != nil {
		return c, err
	}

	// eax holds the loaded sprite. Halve its width and height, and the
	// dimensions of its page at [eax+16]. Falls through into finish.
	success, c, err := assemble(c, func(b *asm.Builder) {
		b.ShrWordMem8(asm.EAX, 0, 1).
			ShrWordMem8(asm.EAX, 2, 2).
			ShrWordMem8(asm.EAX, 14, 2).
			MovRegMem8(asm.EDX, asm.EAX, 16).
			ShrWordMem8(asm.EDX, 0, 1).
			ShrWordMem8(asm.EDX, 2, 2)
	})
	if err != nil {
		return c, err
	}

	// Drops the path buffer and the index left on the stack.
	finish, c, err := assemble(c, func(b *asm.Builder) {
		b.AddESP(int32(s.BufferSize + 4)).Ret()
	})
	if err != nil {
		return c, err
	}

	loader, c, err := assemble(c, func(b *asm.Builder) {
		b.MovRegMem8(asm.EAX, asm.ESP, 4).
			AddESP(-int32(s.BufferSize)).
			MovRegReg(asm.EDX, asm.ESP).
			Push(asm.EAX).
			PushImm32(uint32(format.Start())).
			Push(asm.EDX).
			Call(s.Sprintf).
			Pop(asm.EDX).
			AddESP(4).
			Push(asm.EDX).
			Call(s.LoadTGA).
			AddESP(4).
			Test(asm.EAX).
			Jnz(success.Start()).
			Call(s.LoadOriginal).
			Jmp(finish.Start())
	})
	if err != nil {
		return c, err
	}

	entry, err := hook(s.Site, loader.Start(), (*asm.Builder).Jmp)
	if err != nil {
		return c, err
	}

	for _, code := range []struct {
		what string
		b    *asm.Builder
	}{
		{"精灵路径格式", format},
		{"精灵缩放代码", success},
		{"精灵返回代码", finish},
		{"精灵加载代码", loader},
		{"精灵加载钩子", entry},
	} {
		if err := ctx.writeCode(code.what, code.b); err != nil {
			return c, err
		}
	}

	ctx.Log.WithField("loader", loader.Start().String()).Info("sprite loader replaced")
	return c, nil
}
