//go:build !windows

package target

import "github.com/sirupsen/logrus"

// Process is only available on Windows.
type Process struct{}

// Launch always fails outside Windows.
func Launch(exe string, args []string, log logrus.FieldLogger) (*Process, error) {
	return nil, ErrUnsupportedPlatform
}

func (p *Process) Read(addr Address, size int) ([]byte, error) { return nil, ErrUnsupportedPlatform }
func (p *Process) Write(addr Address, data []byte) error { return ErrUnsupportedPlatform }
func (p *Process) Alloc(size uint32) (Address, error) { return 0, ErrUnsupportedPlatform }
func (p *Process) Resume() error { return ErrUnsupportedPlatform }
func (p *Process) Terminate() error { return ErrUnsupportedPlatform }
func (p *Process) Close() error { return nil }
