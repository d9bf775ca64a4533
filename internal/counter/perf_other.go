//go:build !linux

package counter

import (
	appErr "pmcharness/pkg/errors"
)

// PerfBackend is only available on linux.
type PerfBackend struct{}

func NewPerfBackend() (*PerfBackend, error) {
	return nil, appErr.New(appErr.BackendUnsupported).WithMessage("perf_event backend requires linux")
}

func (b *PerfBackend) WithEventType(t uint32) *PerfBackend { return b }

func (b *PerfBackend) Name() string { return BackendPerf }

func (b *PerfBackend) FixedCounters() []string { return nil }

func (b *PerfBackend) Open(core int, specs Specs) (Group, error) {
	return nil, appErr.New(appErr.BackendUnsupported).WithMessage("perf_event backend requires linux")
}
