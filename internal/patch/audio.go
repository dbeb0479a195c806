package patch

import (
	"errors"
	"fmt"

	"github.com/ZacharyZcR/racerpatch/internal/arena"
	"github.com/go-audio/audio"
	"github.com/sirupsen/logrus"
)

// ErrInvalidAudio is returned for a stream format the source cannot take.
var ErrInvalidAudio = errors.New("音频参数无效")

// AudioQuality raises the streaming audio format. It writes immediates only
// and does not use the arena.
type AudioQuality struct {
	Format   audio.Format
	BitDepth int
}

// DefaultAudioQuality returns 44.1 kHz 16-bit stereo.
func DefaultAudioQuality() AudioQuality {
	return AudioQuality{
		Format:   audio.Format{NumChannels: 2, SampleRate: 44100},
		BitDepth: 16,
	}
}

// Name implements Operation.
func (op AudioQuality) Name() string {
	return "audio"
}

// BufferSize returns the stream buffer size, two seconds of audio.
func (op AudioQuality) BufferSize() uint32 {
	return 2 * uint32(op.Format.SampleRate) * uint32(op.BitDepth/8) * uint32(op.Format.NumChannels)
}

// Validate checks the format.
func (op AudioQuality) Validate() error {
	switch {
	case op.BitDepth != 8 && op.BitDepth != 16:
		return fmt.Errorf("%w: 位深 %d", ErrInvalidAudio, op.BitDepth)
	case op.Format.NumChannels != 1 && op.Format.NumChannels != 2:
		return fmt.Errorf("%w: 声道数 %d", ErrInvalidAudio, op.Format.NumChannels)
	case op.Format.SampleRate <= 0 || op.Format.SampleRate > 192000:
		return fmt.Errorf("%w: 采样率 %d", ErrInvalidAudio, op.Format.SampleRate)
	}
	return nil
}

// Apply implements Operation.
func (op AudioQuality) Apply(ctx *Context, c arena.Cursor) (arena.Cursor, error) {
	if err := op.Validate(); err != nil {
		return c, err
	}
	a := ctx.Profile.Audio
	size := op.BufferSize()

	if err := ctx.Acc.Write32(a.BufferSize, size); err != nil {
		return c, fmt.Errorf("写入音频缓冲区大小失败: %w", err)
	}
	if err := ctx.Acc.Write8(a.BitDepth, uint8(op.BitDepth)); err != nil {
		return c, fmt.Errorf("写入音频位深失败: %w", err)
	}
	if err := ctx.Acc.Write32(a.SampleRate, uint32(op.Format.SampleRate)); err != nil {
		return c, fmt.Errorf("写入音频采样率失败: %w", err)
	}
	for _, addr := range a.ChunkSizes {
		if err := ctx.Acc.Write32(addr, size/2); err != nil {
			return c, fmt.Errorf("写入音频块大小失败: %w", err)
		}
	}

	ctx.Log.WithFields(logrus.Fields{
		"rate":     op.Format.SampleRate,
		"bits":     op.BitDepth,
		"channels": op.Format.NumChannels,
		"buffer":   size,
	}).Info("audio stream format set")
	return c, nil
}
