package patch

import (
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/ZacharyZcR/racerpatch/internal/asset"
	"github.com/ZacharyZcR/racerpatch/internal/pe"
	"github.com/ZacharyZcR/racerpatch/internal/profile"
	"github.com/ZacharyZcR/racerpatch/internal/target"
	"github.com/sirupsen/logrus"
)

// Host is a patchable image: a file on disk or a suspended process.
type Host interface {
	Target() target.Target
	// Identify reads the build fingerprint. It must not write.
	Identify() (*profile.Profile, error)
	// ReserveArena makes capacity bytes of executable memory available.
	ReserveArena(capacity uint32) (arena.Cursor, error)
	// Finish commits a successful run.
	Finish() error
	// Abort gives up after a failed run.
	Abort() error
}

var (
	_ Host = (*pe.Patcher)(nil)
	_ Host = (*LiveHost)(nil)
)

// Options selects the operations of a run.
type Options struct {
	Capacity uint32
	Assets   asset.Loader

	Textures bool
	Network  *NetworkUpgrades
	Audio    *AudioQuality
	Sprites  bool
}

// Operations returns the enabled operations in their fixed order: the
// texture tables, network, audio, sprites.
func Operations(prof *profile.Profile, opts Options) []Operation {
	var ops []Operation
	if opts.Textures {
		for _, t := range prof.Textures {
			ops = append(ops, TextureTable{Table: t, Assets: opts.Assets})
		}
	}
	if opts.Network != nil {
		ops = append(ops, *opts.Network)
	}
	if opts.Audio != nil {
		ops = append(ops, *opts.Audio)
	}
	if opts.Sprites {
		ops = append(ops, SpriteLoader{})
	}
	return ops
}

// Result is the arena usage of one operation.
type Result struct {
	Name  string
	Start target.Address
	Used  uint32
}

// Report summarizes a run.
type Report struct {
	Profile *profile.Profile
	Arena   arena.Cursor
	Results []Result
}

// Run applies ops in order, threading the cursor through them. It stops at
// the first failure.
func Run(ctx *Context, c arena.Cursor, ops ...Operation) ([]Result, arena.Cursor, error) {
	results := make([]Result, 0, len(ops))
	for _, op := range ops {
		start := c.Next()
		log := ctx.Log.WithField("op", op.Name())
		log.WithField("addr", start.String()).Debug("applying")

		next, err := op.Apply(ctx, c)
		if err != nil {
			return results, c, fmt.Errorf("%s: %w", op.Name(), err)
		}

		used := next.Used() - c.Used()
		results = append(results, Result{Name: op.Name(), Start: start, Used: used})
		log.WithField("bytes", used).Info("applied")
		c = next
	}
	return results, c, nil
}

// Patch identifies the host, reserves the arena and runs the enabled
// operations. On failure after identification the host is aborted.
func Patch(host Host, opts Options, log logrus.FieldLogger) (*Report, error) {
	prof, err := host.Identify()
	if err != nil {
		_ = host.Abort()
		return nil, err
	}
	log.WithField("build", prof.Name).Info("identified build")

	capacity := opts.Capacity
	if capacity == 0 {
		capacity = arena.DefaultCapacity
	}

	c, err := host.ReserveArena(capacity)
	if err != nil {
		_ = host.Abort()
		return nil, fmt.Errorf("分配补丁区域失败: %w", err)
	}

	ctx := NewContext(host.Target(), prof, log)
	results, c, err := Run(ctx, c, Operations(prof, opts)...)
	report := &Report{Profile: prof, Arena: c, Results: results}
	if err != nil {
		_ = host.Abort()
		return report, err
	}

	if err := host.Finish(); err != nil {
		return report, err
	}
	return report, nil
}

// Process is a suspended process that can receive fresh memory.
type Process interface {
	target.Target
	Alloc(size uint32) (target.Address, error)
	Resume() error
	Terminate() error
}

// LiveHost patches a process before its first instruction runs.
type LiveHost struct {
	proc      Process
	imageBase target.Address
	log       logrus.FieldLogger
}

// NewLiveHost returns a host for proc with the image mapped at imageBase.
func NewLiveHost(proc Process, imageBase target.Address, log logrus.FieldLogger) *LiveHost {
	return &LiveHost{proc: proc, imageBase: imageBase, log: log}
}

// Target implements Host.
func (h *LiveHost) Target() target.Target {
	return h.proc
}

// Identify implements Host.
func (h *LiveHost) Identify() (*profile.Profile, error) {
	prof, _, err := pe.Identify(target.NewAccessor(h.proc), h.imageBase)
	return prof, err
}

// ReserveArena implements Host.
func (h *LiveHost) ReserveArena(capacity uint32) (arena.Cursor, error) {
	addr, err := h.proc.Alloc(capacity)
	if err != nil {
		return arena.Cursor{}, err
	}
	h.log.WithField("addr", addr.String()).Info("allocated patch memory")
	return arena.New(addr, capacity)
}

// Finish resumes the process.
func (h *LiveHost) Finish() error {
	return h.proc.Resume()
}

// Abort terminates the process.
func (h *LiveHost) Abort() error {
	return h.proc.Terminate()
}
