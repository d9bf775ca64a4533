package orchestrator

import (
	"context"
	"os"

	"pmcharness/internal/gate"
	"pmcharness/internal/subject"
)

// Realtime parameters applied by the helper before exec.
const (
	realtimePriority = 99
	realtimeNice     = -20
)

// Launcher starts subjects blocked on their gate.
type Launcher interface {
	// Launch returns once the helper is running; handle may be nil.
	Launch(ctx context.Context, s subject.Subject, g *gate.Gate, handle *os.File) (*Process, error)
}

func newRequest(s subject.Subject) LaunchRequest {
	return LaunchRequest{
		Role:     string(s.Role),
		Path:     s.Path,
		Args:     s.Args,
		Env:      s.Env,
		Core:     s.Core,
		Realtime: s.Realtime,
		Priority: realtimePriority,
		Nice:     realtimeNice,
	}
}
