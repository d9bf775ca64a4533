//go:build linux

package gate

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"

	appErr "pmcharness/pkg/errors"

	"golang.org/x/sys/unix"
)

const (
	futexWait = 0
	futexWake = 1

	open   uint32 = 1
	closed uint32 = 0
)

// Gate is a binary semaphore in a shared memory page. The page lives in a memfd so a
// child process inherits it across exec. The futex is process-shared.
type Gate struct {
	file *os.File
	mem  []byte
	word *uint32
}

// New creates a gate in the "may proceed" state.
func New(name string) (*Gate, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, appErr.SetupError(err, "memfd_create %s", name)
	}
	file := os.NewFile(uintptr(fd), fmt.Sprintf("/proc/self/fd/%d", fd))
	if err := unix.Ftruncate(fd, int64(os.Getpagesize())); err != nil {
		_ = file.Close()
		return nil, appErr.SetupError(err, "size gate %s", name)
	}
	g, err := mapGate(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	atomic.StoreUint32(g.word, open)
	return g, nil
}

// Open maps a gate descriptor inherited from the parent.
func Open(file *os.File) (*Gate, error) {
	return mapGate(file)
}

func mapGate(file *os.File) (*Gate, error) {
	mem, err := unix.Mmap(int(file.Fd()), 0, os.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, appErr.SetupError(err, "map gate %s", file.Name())
	}
	return &Gate{
		file: file,
		mem:  mem,
		word: (*uint32)(unsafe.Pointer(&mem[0])),
	}, nil
}

// File is the descriptor a child inherits.
func (g *Gate) File() *os.File { return g.file }

// Acquire blocks until the gate is open and closes it.
func (g *Gate) Acquire() error {
	for {
		if atomic.CompareAndSwapUint32(g.word, open, closed) {
			return nil
		}
		if err := g.futex(futexWait, closed); err != nil {
			switch err {
			case unix.EAGAIN, unix.EINTR:
			default:
				return appErr.SchedulingError(err, "futex wait on %s", g.file.Name())
			}
		}
	}
}

// Release opens the gate and wakes one waiter.
func (g *Gate) Release() error {
	atomic.StoreUint32(g.word, open)
	if err := g.futex(futexWake, 1); err != nil {
		return appErr.SchedulingError(err, "futex wake on %s", g.file.Name())
	}
	return nil
}

// Pass blocks until released and leaves the gate open.
func (g *Gate) Pass() error {
	if err := g.Acquire(); err != nil {
		return err
	}
	return g.Release()
}

// IsOpen reports the current state without blocking.
func (g *Gate) IsOpen() bool {
	return atomic.LoadUint32(g.word) == open
}

func (g *Gate) Close() error {
	var err error
	if g.mem != nil {
		err = unix.Munmap(g.mem)
		g.mem = nil
		g.word = nil
	}
	if cerr := g.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (g *Gate) futex(op int, val uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(g.word)), uintptr(op), uintptr(val), 0, 0, 0)
	if errno != 0 {
		return syscall.Errno(errno)
	}
	return nil
}
