//go:build windows

package target

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

var (
	kernel32           = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx = kernel32.NewProc("VirtualAllocEx")
)

// Process is the live backend. The process is created suspended and stays
// that way until Resume, so nothing races with the patcher. Addresses are
// used as-is.
type Process struct {
	info windows.ProcessInformation
	log  logrus.FieldLogger
}

// Launch starts exe suspended.
func Launch(exe string, args []string, log logrus.FieldLogger) (*Process, error) {
	appName, err := windows.UTF16PtrFromString(exe)
	if err != nil {
		return nil, fmt.Errorf("可执行文件路径无效: %w", err)
	}
	cmdLine, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(append([]string{exe}, args...)))
	if err != nil {
		return nil, fmt.Errorf("命令行无效: %w", err)
	}

	p := &Process{log: log}
	var si windows.StartupInfo
	si.Cb = uint32(unsafe.Sizeof(si))
	err = windows.CreateProcess(appName, cmdLine, nil, nil, false, windows.CREATE_SUSPENDED, nil, nil, &si, &p.info)
	if err != nil {
		return nil, fmt.Errorf("创建进程失败: %w", err)
	}

	log.WithField("pid", p.info.ProcessId).Info("process created suspended")
	return p, nil
}

// Read reads size bytes at addr.
func (p *Process) Read(addr Address, size int) ([]byte, error) {
	data := make([]byte, size)
	if size == 0 {
		return data, nil
	}

	var n uintptr
	err := windows.ReadProcessMemory(p.info.Process, uintptr(addr), &data[0], uintptr(size), &n)
	if err != nil || int(n) != size {
		return nil, fmt.Errorf("读取进程内存 %s 失败: %w", addr, err)
	}
	return data, nil
}

// Write temporarily makes the range writable and executable, writes data
// and restores the previous protection.
func (p *Process) Write(addr Address, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	var oldProtect uint32
	err := windows.VirtualProtectEx(p.info.Process, uintptr(addr), uintptr(len(data)), windows.PAGE_EXECUTE_READWRITE, &oldProtect)
	if err != nil {
		return fmt.Errorf("修改内存保护 %s 失败: %w", addr, err)
	}

	var n uintptr
	err = windows.WriteProcessMemory(p.info.Process, uintptr(addr), &data[0], uintptr(len(data)), &n)
	if err != nil || int(n) != len(data) {
		return fmt.Errorf("写入进程内存 %s 失败: %w", addr, err)
	}

	if err := windows.VirtualProtectEx(p.info.Process, uintptr(addr), uintptr(len(data)), oldProtect, &oldProtect); err != nil {
		return fmt.Errorf("恢复内存保护 %s 失败: %w", addr, err)
	}
	return nil
}

// Alloc reserves size bytes of executable memory inside the process.
func (p *Process) Alloc(size uint32) (Address, error) {
	r, _, err := procVirtualAllocEx.Call(
		uintptr(p.info.Process),
		0,
		uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE,
		windows.PAGE_EXECUTE_READWRITE,
	)
	if r == 0 {
		return 0, fmt.Errorf("分配进程内存失败: %w", err)
	}
	if uint64(r)+uint64(size) > math.MaxUint32 {
		return 0, fmt.Errorf("分配的内存 0x%X 超出32位地址空间", r)
	}

	addr := Address(r)
	p.log.WithFields(logrus.Fields{
		"addr": addr.String(),
		"size": size,
	}).Info("allocated patch memory")
	return addr, nil
}

// Resume lets the main thread run.
func (p *Process) Resume() error {
	if _, err := windows.ResumeThread(p.info.Thread); err != nil {
		return fmt.Errorf("恢复线程失败: %w", err)
	}
	return nil
}

// Terminate kills a process that could not be patched completely.
func (p *Process) Terminate() error {
	if err := windows.TerminateProcess(p.info.Process, 1); err != nil {
		return fmt.Errorf("终止进程失败: %w", err)
	}
	return nil
}

// Close releases the process and thread handles. The process keeps running.
func (p *Process) Close() error {
	_ = windows.CloseHandle(p.info.Thread)
	return windows.CloseHandle(p.info.Process)
}
