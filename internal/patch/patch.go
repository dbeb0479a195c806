// Package patch applies the racer patches to a Target.
//
// Every operation first plans its arena allocations and assembles its code,
// then writes. Validation failures and arena exhaustion are therefore
// reported before the operation touches the target.
package patch

import (
	"errors"
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/ZacharyZcR/racerpatch/internal/asm"
	"github.com/ZacharyZcR/racerpatch/internal/profile"
	"github.com/ZacharyZcR/racerpatch/internal/target"
	"github.com/sirupsen/logrus"
)

// ErrSiteTooSmall is returned when a hook does not fit its install site.
var ErrSiteTooSmall = errors.New("安装位置空间不足")

// Context is what an operation works against.
type Context struct {
	Target  target.Target
	Acc     *target.Accessor
	Profile *profile.Profile
	Log     logrus.FieldLogger
}

// NewContext creates a context for patching t as the build prof.
func NewContext(t target.Target, prof *profile.Profile, log logrus.FieldLogger) *Context {
	return &Context{
		Target:  t,
		Acc:     target.NewAccessor(t),
		Profile: prof,
		Log:     log,
	}
}

// Operation is one patch. Apply places its data and code at the cursor and
// returns the advanced cursor.
type Operation interface {
	Name() string
	Apply(ctx *Context, c arena.Cursor) (arena.Cursor, error)
}

// assemble builds code at the cursor and reserves room for it.
func assemble(c arena.Cursor, build func(b *asm.Builder)) (*asm.Builder, arena.Cursor, error) {
	b := asm.NewBuilder(c.Next())
	build(b)
	_, next, err := c.Alloc(b.Len())
	if err != nil {
		return nil, c, err
	}
	return b, next, nil
}

// hook assembles a branch from the start of site to dst and pads the rest
// of the site with NOPs.
func hook(site profile.Site, dst target.Address, branch func(*asm.Builder, target.Address) *asm.Builder) (*asm.Builder, error) {
	b := asm.NewBuilder(site.Start)
	branch(b, dst)
	if b.Len() > site.Len() {
		return nil, fmt.Errorf("%w: %s 需要 %d 字节, 只有 %d 字节", ErrSiteTooSmall, site.Start, b.Len(), site.Len())
	}
	b.Nops(int(site.Len() - b.Len()))
	return b, nil
}

// writeCode writes assembled code to the target.
func (ctx *Context) writeCode(what string, b *asm.Builder) error {
	if err := ctx.Target.Write(b.Start(), b.Bytes()); err != nil {
		return fmt.Errorf("写入%s失败: %w", what, err)
	}
	ctx.Log.WithFields(logrus.Fields{
		"code":  what,
		"addr":  b.Start().String(),
		"bytes": b.Len(),
	}).Debug("wrote code")
	return nil
}
