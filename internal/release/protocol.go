package release

import (
	"time"

	"pmcharness/internal/subject"
	appErr "pmcharness/pkg/errors"
)

// Party is one gated subject: releasing opens its gate, waiting reaps it.
type Party interface {
	Release() error
	Wait() error
}

// Params selects one of the release orderings.
type Params struct {
	Attack      bool
	Invert      bool
	Synchronous bool
	// Delay between the two releases; zero disables it.
	Delay time.Duration
}

func (p Params) Delayed() bool { return p.Delay > 0 }

// Validate rejects flag combinations that only make sense in attack mode.
func (p Params) Validate() error {
	if p.Delay < 0 {
		return appErr.New(appErr.InvalidFlags).WithMessage("delay must be positive")
	}
	if !p.Attack && p.Invert {
		return appErr.New(appErr.InvalidFlags).WithMessage("invert requires an attacker")
	}
	if !p.Attack && p.Delayed() {
		return appErr.New(appErr.InvalidFlags).WithMessage("delay requires an attacker")
	}
	return nil
}

// Kind is the type of a trace event.
type Kind string

const (
	Released Kind = "release"
	Awaited  Kind = "wait"
	Slept    Kind = "sleep"
)

// Event is one protocol step with a monotonic timestamp.
type Event struct {
	Role subject.Role
	Kind Kind
	At   time.Time
}

// Trace records the steps of one repetition in order.
type Trace []Event

// ReleasedAt returns when role was released.
func (t Trace) ReleasedAt(role subject.Role) (time.Time, bool) {
	for _, e := range t {
		if e.Role == role && e.Kind == Released {
			return e.At, true
		}
	}
	return time.Time{}, false
}

// Steps renders the trace as "kind:role" strings.
func (t Trace) Steps() []string {
	out := make([]string, 0, len(t))
	for _, e := range t {
		if e.Role == "" {
			out = append(out, string(e.Kind))
			continue
		}
		out = append(out, string(e.Kind)+":"+string(e.Role))
	}
	return out
}

// Protocol releases the subjects of one repetition and waits for both to finish.
// Waits are unbounded.
type Protocol struct {
	params Params
	sleep  func(time.Duration)
	now    func() time.Time
}

func New(params Params) *Protocol {
	return &Protocol{params: params, sleep: time.Sleep, now: time.Now}
}

// WithClock replaces sleeping and time sources.
func (p *Protocol) WithClock(sleep func(time.Duration), now func() time.Time) *Protocol {
	p.sleep = sleep
	p.now = now
	return p
}

func (p *Protocol) Params() Params { return p.params }

// Run drives IDLE through releasing to DRAINED. attacker is ignored unless Attack is set.
func (p *Protocol) Run(victim, attacker Party) (Trace, error) {
	r := &run{p: p}
	parties := map[subject.Role]Party{subject.Victim: victim, subject.Attacker: attacker}
	if p.params.Attack && attacker == nil {
		return nil, appErr.New(appErr.InternalError).WithMessage("attack mode without attacker")
	}

	first, second := subject.Victim, subject.Attacker
	if p.params.Attack && !p.params.Invert {
		first, second = subject.Attacker, subject.Victim
	}

	if err := r.release(first, parties[first]); err != nil {
		return r.trace, err
	}
	if p.params.Attack {
		if !p.params.Invert {
			r.pause()
		}
		if p.params.Synchronous {
			if err := r.wait(first, parties[first]); err != nil {
				return r.trace, err
			}
		}
		if p.params.Invert {
			r.pause()
		}
		if err := r.release(second, parties[second]); err != nil {
			return r.trace, err
		}
		if p.params.Synchronous {
			if err := r.wait(second, parties[second]); err != nil {
				return r.trace, err
			}
		}
	} else if p.params.Synchronous {
		if err := r.wait(first, parties[first]); err != nil {
			return r.trace, err
		}
	}

	// completion: victim first, then attacker
	if err := r.wait(subject.Victim, victim); err != nil {
		return r.trace, err
	}
	if p.params.Attack {
		if err := r.wait(subject.Attacker, attacker); err != nil {
			return r.trace, err
		}
	}
	return r.trace, nil
}

type run struct {
	p      *Protocol
	trace  Trace
	waited map[subject.Role]bool
}

func (r *run) record(role subject.Role, kind Kind) {
	r.trace = append(r.trace, Event{Role: role, Kind: kind, At: r.p.now()})
}

func (r *run) release(role subject.Role, party Party) error {
	if err := party.Release(); err != nil {
		return err
	}
	r.record(role, Released)
	return nil
}

func (r *run) pause() {
	if !r.p.params.Delayed() {
		return
	}
	r.p.sleep(r.p.params.Delay)
	r.record("", Slept)
}

func (r *run) wait(role subject.Role, party Party) error {
	if r.waited[role] {
		return nil
	}
	if r.waited == nil {
		r.waited = make(map[subject.Role]bool, 2)
	}
	r.waited[role] = true
	if err := party.Wait(); err != nil {
		return err
	}
	r.record(role, Awaited)
	return nil
}
