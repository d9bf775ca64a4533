//go:build linux

// Command subject-init prepares one measured subject and becomes it. It pins itself,
// escalates scheduling, waits on the release gate and then execs the subject, so the
// subject starts running the instant the orchestrator releases it.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"pmcharness/internal/gate"
	"pmcharness/internal/orchestrator"
	appErr "pmcharness/pkg/errors"

	"golang.org/x/sys/unix"
)

// Affinity and scheduling policy are per thread, and exec happens from this thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		status := os.NewFile(orchestrator.StatusFd, "status")
		if werr := orchestrator.WriteStatus(status, err); werr != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(1)
	}
}

func run() error {
	req, err := orchestrator.DecodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	if err := detachStdin(); err != nil {
		return err
	}
	if err := pinCore(req.Core); err != nil {
		return err
	}
	if req.Realtime {
		if err := escalate(req.Nice, req.Priority); err != nil {
			return err
		}
	}

	cmdPath, err := resolveCommand(req.Path)
	if err != nil {
		return err
	}

	unix.CloseOnExec(orchestrator.GateFd)
	unix.CloseOnExec(orchestrator.StatusFd)

	g, err := gate.Open(os.NewFile(orchestrator.GateFd, "gate"))
	if err != nil {
		return err
	}
	if err := g.Pass(); err != nil {
		return err
	}

	if err := unix.Exec(cmdPath, req.Args, req.Env); err != nil {
		return appErr.Wrapf(err, appErr.ExecFailed, "exec %s", cmdPath)
	}
	return nil
}

// detachStdin replaces the request pipe so subjects never read it.
func detachStdin() error {
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return appErr.Wrapf(err, appErr.StartFailed, "open %s", os.DevNull)
	}
	defer devNull.Close()
	if err := unix.Dup3(int(devNull.Fd()), 0, 0); err != nil {
		return appErr.Wrapf(err, appErr.StartFailed, "redirect stdin")
	}
	return nil
}

func pinCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return appErr.Wrapf(err, appErr.AffinityFailed, "pin to core %d", core)
	}
	return nil
}

func escalate(nice, priority int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, nice); err != nil {
		return appErr.Wrapf(err, appErr.RealtimeDenied, "set nice %d", nice)
	}
	attr := unix.SchedAttr{
		Policy:   unix.SCHED_RR,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return appErr.Wrapf(err, appErr.RealtimeDenied, "set SCHED_RR priority %d", priority)
	}
	return nil
}

func resolveCommand(path string) (string, error) {
	if strings.Contains(path, "/") {
		return path, nil
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ExecFailed, "resolve command %s", path)
	}
	return resolved, nil
}
