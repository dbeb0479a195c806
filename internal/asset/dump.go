package asset

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
)

// DumpPath returns the file name for a dumped texture.
func DumpPath(dir, label string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.bmp", label, index))
}

// Image converts a 4bpp texture to a grayscale image.
func Image(packed []byte, width, height uint32) (*image.Gray, error) {
	pixels, err := Unpack4bpp(packed, width, height)
	if err != nil {
		return nil, err
	}

	img := image.NewGray(image.Rect(0, 0, int(width), int(height)))
	copy(img.Pix, pixels)
	return img, nil
}

// WriteBMP writes a 4bpp texture to path as a grayscale bitmap.
func WriteBMP(path string, packed []byte, width, height uint32) error {
	img, err := Image(packed, width, height)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}

	if err := bmp.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("写入位图失败: %w", err)
	}
	return f.Close()
}
