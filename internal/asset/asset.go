// Package asset loads the external texture payloads.
//
// A payload is a raw two-channel image (gray and alpha, as exported by
// GIMP) of exactly width*height pixels, two bytes per pixel. Only the high
// nibble of the gray channel is kept.
package asset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultSuffix is appended to <label>_<index> to form a payload file name.
const DefaultSuffix = "_test.data"

const bytesPerPixel = 2

var (
	// ErrMissing is returned when a payload file does not exist.
	ErrMissing = errors.New("资源文件不存在")
	// ErrMalformed is returned when a payload file is shorter than its image.
	ErrMalformed = errors.New("资源文件格式错误")
)

// Loader finds payload files in a directory.
type Loader struct {
	Dir    string
	Suffix string
}

// NewLoader returns a loader for dir. An empty suffix selects DefaultSuffix.
func NewLoader(dir, suffix string) Loader {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return Loader{Dir: dir, Suffix: suffix}
}

// Path returns the payload file name for texture index of label.
func (l Loader) Path(label string, index int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("%s_%d%s", label, index, l.Suffix))
}

// Load reads the payload for texture index of label and returns it packed
// to 4 bits per pixel.
func (l Loader) Load(label string, index int, width, height uint32) ([]byte, error) {
	path := l.Path(label, index)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("打开资源文件失败: %w", err)
	}
	defer func() { _ = f.Close() }()

	raw := make([]byte, int(width)*int(height)*bytesPerPixel)
	if _, err := io.ReadFull(f, raw); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s 少于 %d 字节", ErrMalformed, path, len(raw))
		}
		return nil, fmt.Errorf("读取资源文件失败: %w", err)
	}

	return Pack4bpp(raw, width, height)
}

// PackedSize returns the size of a 4bpp texture.
func PackedSize(width, height uint32) uint32 {
	return width * height / 2
}

// Pack4bpp packs a gray+alpha image into 4 bits per pixel. Even pixels land
// in the high nibble.
func Pack4bpp(raw []byte, width, height uint32) ([]byte, error) {
	pixels := int(width) * int(height)
	if len(raw) < pixels*bytesPerPixel {
		return nil, fmt.Errorf("%w: %d 字节, 需要 %d", ErrMalformed, len(raw), pixels*bytesPerPixel)
	}

	packed := make([]byte, PackedSize(width, height))
	for i := 0; i < pixels; i++ {
		gray := raw[i*bytesPerPixel]
		packed[i/2] |= (gray & 0xF0) >> ((i % 2) * 4)
	}
	return packed, nil
}

// Unpack4bpp expands a 4bpp texture to one byte per pixel, scaled to 0-255.
func Unpack4bpp(packed []byte, width, height uint32) ([]byte, error) {
	pixels := int(width) * int(height)
	if len(packed)*2 < pixels {
		return nil, fmt.Errorf("%w: %d 字节, 需要 %d", ErrMalformed, len(packed), (pixels+1)/2)
	}

	out := make([]byte, pixels)
	for i := range out {
		v := (packed[i/2] << ((i % 2) * 4)) & 0xF0
		out[i] = v | v>>4
	}
	return out, nil
}
