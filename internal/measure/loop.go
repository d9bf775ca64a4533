package measure

import (
	"context"
	"time"

	"pmcharness/internal/counter"
	"pmcharness/internal/release"
	"pmcharness/internal/result"
	"pmcharness/internal/subject"
	appErr "pmcharness/pkg/errors"
	"pmcharness/pkg/utils/logger"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Gate is a role's release gate as seen by the orchestrator.
type Gate interface {
	Acquire() error
	Release() error
}

// Process is a launched subject.
type Process interface {
	Wait() error
	ExitCode() int
	Kill() error
}

// LaunchFunc starts a subject blocked on its gate.
type LaunchFunc func(ctx context.Context) (Process, error)

// Sink persists samples of one role.
type Sink interface {
	Append(result.Sample) error
}

// SampleFunc observes every sample read, used for verbose output.
type SampleFunc func(role subject.Role, repetition int, values result.Sample)

// Participant is everything the loop needs for one role. Group and Sink are nil in monitor-only mode.
type Participant struct {
	Role   subject.Role
	Core   int
	Gate   Gate
	Launch LaunchFunc
	Group  counter.Group
	Sink   Sink
}

type Options struct {
	Repeat      int
	MonitorOnly bool
	Release     release.Params
	OnSample    SampleFunc
}

// Loop runs the repetitions of one measurement.
type Loop struct {
	opts     Options
	protocol *release.Protocol
	victim   Participant
	attacker *Participant
}

// New validates the participants; attacker must be set exactly when the release params are in attack mode.
func New(opts Options, victim Participant, attacker *Participant) (*Loop, error) {
	if opts.Repeat < 1 {
		return nil, appErr.New(appErr.InvalidFlags).WithMessagef("repeat must be at least 1, got %d", opts.Repeat)
	}
	if err := opts.Release.Validate(); err != nil {
		return nil, err
	}
	if opts.Release.Attack != (attacker != nil) {
		return nil, appErr.New(appErr.InternalError).WithMessage("attacker participant does not match attack mode")
	}
	parts := []*Participant{&victim}
	if attacker != nil {
		parts = append(parts, attacker)
	}
	for _, p := range parts {
		if p.Gate == nil || p.Launch == nil {
			return nil, appErr.New(appErr.InternalError).WithMessagef("%s has no gate or launcher", p.Role)
		}
		if !opts.MonitorOnly && (p.Group == nil || p.Sink == nil) {
			return nil, appErr.New(appErr.InternalError).WithMessagef("%s has no counter group or sink", p.Role)
		}
	}
	return &Loop{
		opts:     opts,
		protocol: release.New(opts.Release),
		victim:   victim,
		attacker: attacker,
	}, nil
}

// WithProtocol replaces the release protocol, keeping its params authoritative.
func (l *Loop) WithProtocol(p *release.Protocol) *Loop {
	l.protocol = p
	return l
}

func (l *Loop) attack() bool { return l.attacker != nil }

// Run executes every repetition; the first error aborts the run.
func (l *Loop) Run(ctx context.Context) error {
	for i := 0; i < l.opts.Repeat; i++ {
		if err := ctx.Err(); err != nil {
			return appErr.Wrapf(err, appErr.InternalError, "interrupted before repetition %d", i)
		}
		repCtx := logger.WithRepetition(ctx, i)
		if err := l.repetition(repCtx, i); err != nil {
			return err
		}
	}
	return nil
}

type party struct {
	gate Gate
	proc Process
}

func (p party) Release() error { return p.gate.Release() }
func (p party) Wait() error    { return p.proc.Wait() }

func (l *Loop) repetition(ctx context.Context, i int) (err error) {
	if err := l.victim.Gate.Acquire(); err != nil {
		return err
	}
	if l.attack() {
		if err := l.attacker.Gate.Acquire(); err != nil {
			return err
		}
	}

	var launched []Process
	defer func() {
		if err == nil {
			return
		}
		for _, p := range launched {
			err = multierr.Append(err, p.Kill())
		}
	}()

	var attackerProc Process
	if l.attack() {
		attackerProc, err = l.attacker.Launch(ctx)
		if err != nil {
			return err
		}
		launched = append(launched, attackerProc)
	}
	victimProc, err := l.victim.Launch(ctx)
	if err != nil {
		return err
	}
	launched = append(launched, victimProc)

	if !l.opts.MonitorOnly {
		if err := l.victim.Group.Arm(); err != nil {
			return err
		}
		if l.attack() && l.attacker.Core != l.victim.Core {
			if err := l.attacker.Group.Arm(); err != nil {
				return err
			}
		}
	}

	victimParty := party{gate: l.victim.Gate, proc: victimProc}
	var attackerParty release.Party
	if l.attack() {
		attackerParty = party{gate: l.attacker.Gate, proc: attackerProc}
	}
	start := time.Now()
	trace, err := l.protocol.Run(victimParty, attackerParty)
	if err != nil {
		return err
	}
	logger.Debug(ctx, "repetition drained",
		zap.Strings("steps", trace.Steps()),
		zap.Duration("elapsed", time.Since(start)),
	)
	for _, p := range launched {
		if code := p.ExitCode(); code != 0 {
			logger.Warn(ctx, "subject exited with non-zero status", zap.Int("exit_code", code))
		}
	}

	if l.opts.MonitorOnly {
		return nil
	}
	if err := l.collect(l.victim, i); err != nil {
		return err
	}
	if l.attack() {
		if err := l.collect(*l.attacker, i); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) collect(p Participant, i int) error {
	values, err := p.Group.Read()
	if err != nil {
		return err
	}
	if l.opts.OnSample != nil {
		l.opts.OnSample(p.Role, i, values)
	}
	return p.Sink.Append(values)
}
