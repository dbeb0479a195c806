package target

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// File is the on-disk backend. Every access goes through the translator
// because the file layout differs from the virtual layout.
type File struct {
	path string
	file *os.File
	tr   *Translator
	log  logrus.FieldLogger
}

// OpenFile opens path for in-place patching.
func OpenFile(path string, tr *Translator, log logrus.FieldLogger) (*File, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	return &File{path: path, file: file, tr: tr, log: log}, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Translator returns the translator used for address mapping.
func (f *File) Translator() *Translator {
	return f.tr
}

// SetTranslator replaces the translator, e.g. once the build is recognized.
func (f *File) SetTranslator(tr *Translator) {
	f.tr = tr
}

// ReaderAt exposes the raw file for whole-file consumers such as checksum
// calculation and debug/pe.
func (f *File) ReaderAt() io.ReaderAt {
	return f.file
}

func (f *File) offset(addr Address) (Offset, error) {
	off, err := f.tr.Translate(addr)
	if err != nil && !errors.Is(err, ErrFallback) {
		return 0, err
	}
	return off, nil
}

// Read reads size bytes at addr.
func (f *File) Read(addr Address, size int) ([]byte, error) {
	off, err := f.offset(addr)
	if err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if _, err := f.file.ReadAt(data, int64(off)); err != nil {
		return nil, fmt.Errorf("读取 %s (文件偏移 %s) 失败: %w", addr, off, err)
	}
	return data, nil
}

// Write writes data at addr.
func (f *File) Write(addr Address, data []byte) error {
	off, err := f.offset(addr)
	if err != nil {
		return err
	}

	if _, err := f.file.WriteAt(data, int64(off)); err != nil {
		return fmt.Errorf("写入 %s (文件偏移 %s) 失败: %w", addr, off, err)
	}
	return nil
}

// Size returns the current file size.
func (f *File) Size() (int64, error) {
	stat, err := f.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("获取文件信息失败: %w", err)
	}
	return stat.Size(), nil
}

// Extend zero-fills the file up to newSize bytes.
func (f *File) Extend(newSize int64) error {
	size, err := f.Size()
	if err != nil {
		return err
	}
	if newSize <= size {
		return nil
	}

	// Writing the last byte leaves the gap zero-filled.
	if _, err := f.file.WriteAt([]byte{0}, newSize-1); err != nil {
		return fmt.Errorf("扩展文件失败: %w", err)
	}

	f.log.WithFields(logrus.Fields{
		"from": size,
		"to":   newSize,
	}).Debug("extended file")
	return nil
}

// Sync flushes writes to disk.
func (f *File) Sync() error {
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("同步文件失败: %w", err)
	}
	return nil
}
