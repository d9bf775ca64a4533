//go:build linux

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"pmcharness/internal/gate"
	"pmcharness/internal/subject"
	appErr "pmcharness/pkg/errors"
	"pmcharness/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultHelper = "subject-init"

type linuxLauncher struct {
	cfg Config
}

// NewLauncher creates a launcher that starts subjects through the subject-init helper.
func NewLauncher(cfg Config) (Launcher, error) {
	if cfg.HelperPath == "" {
		cfg.HelperPath = defaultHelper
	}
	return &linuxLauncher{cfg: cfg}, nil
}

func (l *linuxLauncher) Launch(ctx context.Context, s subject.Subject, g *gate.Gate, handle *os.File) (*Process, error) {
	if g == nil {
		return nil, appErr.New(appErr.StartFailed).WithMessagef("%s has no release gate", s.Role)
	}
	payload, err := json.Marshal(newRequest(s))
	if err != nil {
		return nil, appErr.ProcessError(err, "encode launch request")
	}

	statusR, statusW, err := os.Pipe()
	if err != nil {
		return nil, appErr.ProcessError(err, "create status pipe")
	}

	cmd := exec.Command(l.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr()
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{g.File(), statusW}
	if handle != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, handle)
	}

	if err := cmd.Start(); err != nil {
		_ = statusR.Close()
		_ = statusW.Close()
		return nil, appErr.Wrapf(err, appErr.StartFailed, "start helper for %s", s.Role)
	}
	// only the child may hold the write end, so exec or exit yields EOF
	_ = statusW.Close()

	logger.Debug(ctx, "subject launched",
		zap.String("role", string(s.Role)),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("core", s.Core),
		zap.Strings("args", s.Args),
	)
	return &Process{Subject: s, cmd: cmd, status: statusR}, nil
}

func buildSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// Process is a launched helper that becomes the subject at exec.
type Process struct {
	Subject subject.Subject

	cmd    *exec.Cmd
	status *os.File

	once     sync.Once
	waitErr  error
	exitCode int
}

func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Wait blocks until the subject exits. A failure before exec is returned as its
// recorded error; the subject's own exit status is reported by ExitCode.
func (p *Process) Wait() error {
	p.once.Do(func() {
		statusErr := ReadStatus(p.status)
		_ = p.status.Close()
		err := p.cmd.Wait()
		p.exitCode = exitCodeFromErr(err, p.cmd.ProcessState)
		if statusErr != nil {
			p.waitErr = statusErr
			return
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.waitErr = appErr.Wrapf(err, appErr.WaitFailed, "wait %s", p.Subject.Role)
		}
	})
	return p.waitErr
}

// ExitCode is valid after Wait; -1 means killed by a signal.
func (p *Process) ExitCode() int { return p.exitCode }

// Kill terminates the whole process group.
func (p *Process) Kill() error {
	pid := p.Pid()
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return appErr.ProcessError(err, "kill %s", p.Subject.Role)
	}
	return nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
