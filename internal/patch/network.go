package patch

import (
	"errors"
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/ZacharyZcR/racerpatch/internal/asm"
)

// UpgradeSlots is the number of pod part categories.
const UpgradeSlots = 7

// ErrUnequalUpgrades is returned when the categories differ. The menu
// defaults hold a single level and health for every category.
var ErrUnequalUpgrades = errors.New("所有升级等级和耐久度必须相同")

// NetworkUpgrades makes network races use fixed upgrade levels and healths
// and marks the build so unpatched peers do not match it.
type NetworkUpgrades struct {
	Levels  [UpgradeSlots]uint8
	Healths [UpgradeSlots]uint8
}

// DefaultNetworkUpgrades returns level 5 at full health for every category.
func DefaultNetworkUpgrades() NetworkUpgrades {
	var n NetworkUpgrades
	for i := range n.Levels {
		n.Levels[i] = 5
		n.Healths[i] = 0xFF
	}
	return n
}

// Name implements Operation.
func (op NetworkUpgrades) Name() string {
	return "network"
}

// Validate checks that every category has the same level and health.
func (op NetworkUpgrades) Validate() error {
	for i := 1; i < UpgradeSlots; i++ {
		if op.Levels[i] != op.Levels[0] || op.Healths[i] != op.Healths[0] {
			return fmt.Errorf("%w: 等级 %v, 耐久度 %v", ErrUnequalUpgrades, op.Levels, op.Healths)
		}
	}
	return nil
}

// Apply implements Operation.
func (op NetworkUpgrades) Apply(ctx *Context, c arena.Cursor) (arena.Cursor, error) {
	if err := op.Validate(); err != nil {
		return c, err
	}
	n := ctx.Profile.Network

	levels, c, err := c.Alloc(UpgradeSlots)
	if err != nil {
		return c, err
	}
	healths, c, err := c.Alloc(UpgradeSlots)
	if err != nil {
		return c, err
	}

	// Called in place of the handling table generator with the original
	// arguments live; pass the fixed tables instead and restore eax/edx.
	tramp, c, err := assemble(c, func(b *asm.Builder) {
		b.Push(asm.EDX).
			Push(asm.EAX).
			PushImm32(uint32(healths.Start)).
			PushImm32(uint32(levels.Start)).
			Push(asm.ESI).
			Push(asm.EDI).
			Call(n.GenerateTable).
			AddESP8(0x10).
			Pop(asm.EAX).
			Pop(asm.EDX).
			Ret()
	})
	if err != nil {
		return c, err
	}

	entry, err := hook(n.Site, tramp.Start(), (*asm.Builder).Call)
	if err != nil {
		return c, err
	}

	if err := ctx.Acc.Write32(n.Marker, n.MarkerValue); err != nil {
		return c, fmt.Errorf("写入网络标记失败: %w", err)
	}
	if err := ctx.Acc.Write32(n.Marker.Add(4), n.Version); err != nil {
		return c, fmt.Errorf("写入网络版本失败: %w", err)
	}
	if err := ctx.Acc.Write8(n.MenuLevel, op.Levels[0]); err != nil {
		return c, fmt.Errorf("写入菜单升级等级失败: %w", err)
	}
	if err := ctx.Acc.Write8(n.MenuHealth, op.Healths[0]); err != nil {
		return c, fmt.Errorf("写入菜单耐久度失败: %w", err)
	}
	if err := ctx.Target.Write(levels.Start, op.Levels[:]); err != nil {
		return c, fmt.Errorf("写入升级等级表失败: %w", err)
	}
	if err := ctx.Target.Write(healths.Start, op.Healths[:]); err != nil {
		return c, fmt.Errorf("写入耐久度表失败: %w", err)
	}
	if err := ctx.writeCode("网络升级代码", tramp); err != nil {
		return c, err
	}
	if err := ctx.writeCode("网络升级钩子", entry); err != nil {
		return c, err
	}

	ctx.Log.WithField("level", op.Levels[0]).WithField("health", op.Healths[0]).Info("network upgrades fixed")
	return c, nil
}
