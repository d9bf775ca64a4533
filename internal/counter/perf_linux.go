//go:build linux

package counter

import (
	"fmt"
	"os"
	"unsafe"

	appErr "pmcharness/pkg/errors"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// ioctl argument applying an operation to every group member.
const perfIOCFlagGroup = 1

// PerfBackend opens one perf_event group per core with raw event configs.
type PerfBackend struct {
	eventType uint32
}

func NewPerfBackend() (*PerfBackend, error) {
	return &PerfBackend{eventType: unix.PERF_TYPE_RAW}, nil
}

// WithEventType interprets every spec config as an event of the given perf type.
func (b *PerfBackend) WithEventType(t uint32) *PerfBackend {
	b.eventType = t
	return b
}

func (b *PerfBackend) Name() string { return BackendPerf }

func (b *PerfBackend) FixedCounters() []string { return nil }

func (b *PerfBackend) Open(core int, specs Specs) (Group, error) {
	if len(specs) == 0 {
		return nil, appErr.New(appErr.InvalidConfig).WithMessage("perf group needs at least one counter")
	}
	g := &perfGroup{core: core, n: len(specs)}
	for i, spec := range specs {
		attr := unix.PerfEventAttr{
			Type:        b.eventType,
			Config:      spec.Config,
			Read_format: unix.PERF_FORMAT_GROUP,
			Bits:        unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
		}
		attr.Size = uint32(unsafe.Sizeof(attr))
		groupFd := -1
		if i == 0 {
			attr.Bits |= unix.PerfBitDisabled
		} else {
			groupFd = int(g.files[0].Fd())
		}
		fd, err := unix.PerfEventOpen(&attr, -1, core, groupFd, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			_ = g.Close()
			return nil, appErr.SetupError(err, "perf_event_open %s on core %d", spec.ID(), core)
		}
		g.files = append(g.files, os.NewFile(uintptr(fd), fmt.Sprintf("perf:%s", spec.ID())))
	}
	return g, nil
}

type perfGroup struct {
	core  int
	n     int
	files []*os.File
}

func (g *perfGroup) leaderFd() int { return int(g.files[0].Fd()) }

func (g *perfGroup) ioctl(req uint) error {
	if err := unix.IoctlSetInt(g.leaderFd(), req, perfIOCFlagGroup); err != nil {
		return appErr.IOError(err, "perf ioctl %#x on core %d", req, g.core)
	}
	return nil
}

// Arm leaves the leader disabled; the subject enables it through the inherited descriptor.
func (g *perfGroup) Arm() error {
	if err := unix.IoctlSetInt(g.leaderFd(), unix.PERF_EVENT_IOC_RESET, perfIOCFlagGroup); err != nil {
		return appErr.SetupError(err, "reset perf group on core %d", g.core)
	}
	return nil
}

func (g *perfGroup) Reset() error {
	return g.ioctl(unix.PERF_EVENT_IOC_RESET)
}

func (g *perfGroup) Read() ([]uint64, error) {
	buf := make([]byte, (1+g.n)*8)
	n, err := unix.Read(g.leaderFd(), buf)
	if err != nil {
		return nil, appErr.IOError(err, "read perf group on core %d", g.core)
	}
	if n < 0 {
		n = 0
	}
	return DecodeGroupRead(buf[:n], g.n)
}

func (g *perfGroup) DisableAll() error {
	return g.ioctl(unix.PERF_EVENT_IOC_DISABLE)
}

func (g *perfGroup) ReenableAll() error {
	return g.ioctl(unix.PERF_EVENT_IOC_ENABLE)
}

func (g *perfGroup) Handle() *os.File {
	if len(g.files) == 0 {
		return nil
	}
	return g.files[0]
}

func (g *perfGroup) Len() int { return g.n }

// Close releases members before the leader.
func (g *perfGroup) Close() error {
	var err error
	for i := len(g.files) - 1; i >= 0; i-- {
		err = multierr.Append(err, g.files[i].Close())
	}
	g.files = nil
	return err
}
