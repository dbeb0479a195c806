package patch

import (
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/ZacharyZcR/racerpatch/internal/asm"
	"github.com/ZacharyZcR/racerpatch/internal/asset"
	"github.com/ZacharyZcR/racerpatch/internal/profile"
	"github.com/ZacharyZcR/racerpatch/internal/target"
	"github.com/sirupsen/logrus"
)

// caveAlign NOPs go in front of each texture cave so a linear disassembler
// resyncs before the cave.
const caveAlign = 16

// maxTextures bounds the entry count read from a table.
const maxTextures = 256

// TextureTable replaces every texture of a table with a payload of the
// table's new dimensions and patches the loader call to pass them.
type TextureTable struct {
	Table  profile.TextureTable
	Assets asset.Loader
}

// Name implements Operation.
func (op TextureTable) Name() string {
	return op.Table.Label
}

// Apply implements Operation.
func (op TextureTable) Apply(ctx *Context, c arena.Cursor) (arena.Cursor, error) {
	t := op.Table

	count, err := readTableCount(ctx, t)
	if err != nil {
		return c, err
	}

	payloads := make([][]byte, count)
	for i := range payloads {
		if payloads[i], err = op.Assets.Load(t.Label, i, t.Width, t.Height); err != nil {
			return c, err
		}
	}

	pad, c, err := assemble(c, func(b *asm.Builder) {
		b.Nops(caveAlign)
	})
	if err != nil {
		return c, err
	}

	cave, c, err := assemble(c, func(b *asm.Builder) {
		b.PushImm32(t.Height).
			PushImm32(t.Width).
			PushImm32(t.Height).
			PushImm32(t.Width).
			Jmp(t.Site.End)
	})
	if err != nil {
		return c, err
	}

	entry, err := hook(t.Site, cave.Start(), (*asm.Builder).Jmp)
	if err != nil {
		return c, err
	}

	regions := make([]arena.Region, count)
	for i, p := range payloads {
		if regions[i], c, err = c.Alloc(uint32(len(p))); err != nil {
			return c, err
		}
	}

	for _, code := range []struct {
		what string
		b    *asm.Builder
	}{
		{"对齐填充", pad},
		{"纹理参数代码", cave},
		{"纹理加载钩子", entry},
	} {
		if err := ctx.writeCode(code.what, code.b); err != nil {
			return c, err
		}
	}

	for i, p := range payloads {
		if err := ctx.Target.Write(regions[i].Start, p); err != nil {
			return c, fmt.Errorf("写入纹理 %s_%d 失败: %w", t.Label, i, err)
		}

		slot := tableSlot(t, i)
		old, err := ctx.Acc.Read32(slot)
		if err != nil {
			return c, fmt.Errorf("读取纹理表失败: %w", err)
		}
		if err := ctx.Acc.Write32(slot, uint32(regions[i].Start)); err != nil {
			return c, fmt.Errorf("写入纹理表失败: %w", err)
		}

		ctx.Log.WithFields(logrus.Fields{
			"table": t.Label,
			"index": i,
			"old":   target.Address(old).String(),
			"new":   regions[i].Start.String(),
		}).Info("replaced texture")
	}

	return c, nil
}

func readTableCount(ctx *Context, t profile.TextureTable) (int, error) {
	count, err := ctx.Acc.Read32(t.Table)
	if err != nil {
		return 0, fmt.Errorf("读取纹理表 %s 失败: %w", t.Label, err)
	}
	if count > maxTextures {
		return 0, fmt.Errorf("纹理表 %s 条目数异常: %d", t.Label, count)
	}
	return int(count), nil
}

func tableSlot(t profile.TextureTable, i int) target.Address {
	return t.Table.Add(4 + 4*uint32(i))
}

// DumpTextureTable writes every texture of the table, at the build's
// original dimensions, as a bitmap in dir. It returns the number of files.
func DumpTextureTable(ctx *Context, t profile.TextureTable, dir string) (int, error) {
	count, err := readTableCount(ctx, t)
	if err != nil {
		return 0, err
	}

	size := int(asset.PackedSize(t.OriginalWidth, t.OriginalHeight))
	for i := 0; i < count; i++ {
		ptr, err := ctx.Acc.Read32(tableSlot(t, i))
		if err != nil {
			return i, fmt.Errorf("读取纹理表失败: %w", err)
		}

		packed, err := ctx.Target.Read(target.Address(ptr), size)
		if err != nil {
			return i, fmt.Errorf("读取纹理 %s_%d 失败: %w", t.Label, i, err)
		}

		path := asset.DumpPath(dir, t.Label, i)
		if err := asset.WriteBMP(path, packed, t.OriginalWidth, t.OriginalHeight); err != nil {
			return i, err
		}
		ctx.Log.WithFields(logrus.Fields{
			"addr": target.Address(ptr).String(),
			"file": path,
		}).Debug("dumped texture")
	}
	return count, nil
}
