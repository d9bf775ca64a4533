package subject

import (
	"fmt"
	"strings"

	appErr "pmcharness/pkg/errors"

	"github.com/google/shlex"
)

// Role distinguishes the two measured programs.
type Role string

const (
	Victim   Role = "victim"
	Attacker Role = "attacker"
)

// GroupFdEnv names the environment variable carrying the inherited counter group descriptor.
const GroupFdEnv = "group_fd"

// Subject is an immutable launch description.
type Subject struct {
	Role Role
	Path string
	// Args[0] is the executable path.
	Args []string
	// Env is the complete environment; the orchestrator's own environment is not inherited.
	Env      []string
	Core     int
	Realtime bool
}

// Builder collects command-line pieces for one subject.
type Builder struct {
	role     Role
	path     string
	core     int
	realtime bool
	params   []string
	env      []string
	groupFd  int
}

func NewBuilder(role Role, path string) *Builder {
	return &Builder{role: role, path: path, realtime: true, groupFd: -1}
}

// Params appends raw parameter strings; each is split with shell quoting rules.
func (b *Builder) Params(values ...string) *Builder {
	b.params = append(b.params, values...)
	return b
}

// Env appends raw NAME=VALUE strings; each may hold several space separated assignments.
func (b *Builder) Env(values ...string) *Builder {
	b.env = append(b.env, values...)
	return b
}

func (b *Builder) Core(core int) *Builder {
	b.core = core
	return b
}

func (b *Builder) Realtime(enabled bool) *Builder {
	b.realtime = enabled
	return b
}

// GroupHandle exports the descriptor number of the inherited counter group; negative disables it.
func (b *Builder) GroupHandle(fd int) *Builder {
	b.groupFd = fd
	return b
}

func (b *Builder) Build() (Subject, error) {
	if strings.TrimSpace(b.path) == "" {
		return Subject{}, appErr.New(appErr.InvalidFlags).WithMessagef("%s executable is required", b.role)
	}
	if b.core < 0 {
		return Subject{}, appErr.New(appErr.InvalidFlags).WithMessagef("%s core %d is invalid", b.role, b.core)
	}

	args := []string{b.path}
	for _, raw := range b.params {
		fields, err := shlex.Split(raw)
		if err != nil {
			return Subject{}, appErr.Wrapf(err, appErr.InvalidFlags, "parse %s parameters %q", b.role, raw)
		}
		args = append(args, fields...)
	}

	var env []string
	for _, raw := range b.env {
		fields, err := shlex.Split(raw)
		if err != nil {
			return Subject{}, appErr.Wrapf(err, appErr.InvalidFlags, "parse %s environment %q", b.role, raw)
		}
		for _, kv := range fields {
			name, _, ok := strings.Cut(kv, "=")
			if !ok || name == "" {
				return Subject{}, appErr.New(appErr.InvalidFlags).WithMessagef("%s environment entry %q is not NAME=VALUE", b.role, kv)
			}
			if name == GroupFdEnv {
				return Subject{}, appErr.New(appErr.InvalidFlags).WithMessagef("%s is reserved", GroupFdEnv)
			}
			env = append(env, kv)
		}
	}
	if b.groupFd >= 0 {
		env = append(env, fmt.Sprintf("%s=%d", GroupFdEnv, b.groupFd))
	}

	return Subject{
		Role:     b.role,
		Path:     b.path,
		Args:     args,
		Env:      env,
		Core:     b.core,
		Realtime: b.realtime,
	}, nil
}

func (s Subject) String() string {
	return fmt.Sprintf("%s(%s on core %d)", s.Role, strings.Join(s.Args, " "), s.Core)
}
