//go:build !linux

package orchestrator

import (
	"context"
	"os"

	"pmcharness/internal/gate"
	"pmcharness/internal/subject"
	appErr "pmcharness/pkg/errors"
)

type stubLauncher struct{}

func NewLauncher(cfg Config) (Launcher, error) {
	return &stubLauncher{}, nil
}

func (s *stubLauncher) Launch(ctx context.Context, sub subject.Subject, g *gate.Gate, handle *os.File) (*Process, error) {
	return nil, appErr.New(appErr.StartFailed).WithMessage("subject launching is only supported on linux")
}

// Process is never produced off linux.
type Process struct {
	Subject subject.Subject
}

func (p *Process) Pid() int      { return -1 }
func (p *Process) Wait() error   { return nil }
func (p *Process) ExitCode() int { return 0 }
func (p *Process) Kill() error   { return nil }
