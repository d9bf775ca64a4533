//go:build linux

package orchestrator

import (
	"os"
	"strconv"

	appErr "pmcharness/pkg/errors"

	"golang.org/x/sys/unix"
)

// PinSelf binds every thread of the orchestrator to core. Threads the runtime
// starts later inherit the mask from the thread that clones them.
func PinSelf(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)

	entries, err := os.ReadDir("/proc/self/task")
	if err != nil {
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			return appErr.Wrapf(err, appErr.AffinityFailed, "pin orchestrator to core %d", core)
		}
		return nil
	}
	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		if err := unix.SchedSetaffinity(tid, &set); err != nil && err != unix.ESRCH {
			return appErr.Wrapf(err, appErr.AffinityFailed, "pin orchestrator thread %d to core %d", tid, core)
		}
	}
	return nil
}
