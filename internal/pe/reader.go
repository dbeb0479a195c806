package pe

import (
	"debug/pe"
	"fmt"
	"os"
)

// Reader wraps debug/pe.File with additional metadata.
type Reader struct {
	file     *pe.File
	raw      *os.File
	filepath string
	filesize int64
}

// Open opens a PE file for reading.
func Open(filepath string) (*Reader, error) {
	raw, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}

	stat, err := raw.Stat()
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("获取文件信息失败: %w", err)
	}

	f, err := pe.NewFile(raw)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("解析PE文件失败: %w", err)
	}

	return &Reader{
		file:     f,
		raw:      raw,
		filepath: filepath,
		filesize: stat.Size(),
	}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.raw.Close()
}

// File returns the underlying debug/pe.File.
func (r *Reader) File() *pe.File {
	return r.file
}

// RawFile returns the file for direct reads.
func (r *Reader) RawFile() *os.File {
	return r.raw
}

// FilePath returns the file path.
func (r *Reader) FilePath() string {
	return r.filepath
}

// FileSize returns the file size in bytes.
func (r *Reader) FileSize() int64 {
	return r.filesize
}
