package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"pmcharness/internal/archive"
	"pmcharness/internal/config"
	"pmcharness/internal/counter"
	"pmcharness/internal/gate"
	"pmcharness/internal/measure"
	"pmcharness/internal/orchestrator"
	"pmcharness/internal/privilege"
	"pmcharness/internal/result"
	"pmcharness/internal/subject"
	appErr "pmcharness/pkg/errors"
	"pmcharness/pkg/utils/logger"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const helperName = "subject-init"

// role bundles the per-role resources owned by a run.
type role struct {
	name  subject.Role
	core  int
	specs counter.Specs
	group counter.Group
	// shared is set when the group belongs to the other role
	shared bool
	sink   *result.Sink
	gate   *gate.Gate
	subj   subject.Subject
}

func run(ctx context.Context, opts options) (err error) {
	base := config.BaseDir()
	victimPath := config.ResolveExecutable(base, opts.victim)
	if err := config.CheckExecutable(victimPath); err != nil {
		return err
	}
	var attackerPath string
	if opts.attack() {
		attackerPath = config.ResolveExecutable(base, opts.attacker)
		if err := config.CheckExecutable(attackerPath); err != nil {
			return err
		}
	}

	cfg, err := config.Load(config.Resolve(base, configPathOrDefault(opts.configPath)), opts.monitorOnly && !opts.configExplicit)
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts)
	if err := logger.Init(cfg.Logger); err != nil {
		return appErr.Wrapf(err, appErr.InvalidConfig, "init logger failed")
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, runID := logger.WithRunID(ctx)
	logger.Debug(ctx, "environment",
		zap.String(config.EnvHome, os.Getenv(config.EnvHome)),
		zap.String(config.EnvBuild, os.Getenv(config.EnvBuild)),
		zap.String(config.EnvInstall, os.Getenv(config.EnvInstall)),
	)

	victim := &role{name: subject.Victim, core: cfg.Cores.Victim}
	var attacker *role
	if opts.attack() {
		attacker = &role{name: subject.Attacker, core: cfg.Cores.Attacker}
	}
	if !opts.monitorOnly {
		if victim.specs, err = cfg.VictimSpecs(); err != nil {
			return err
		}
		if attacker != nil {
			if attacker.specs, err = cfg.AttackerSpecs(); err != nil {
				return err
			}
			if attacker.core == victim.core && !sameIDs(attacker.specs, victim.specs) {
				return appErr.UsageError("attacker counters must match the victim's when both share a core")
			}
		}
		if err := privilege.RequireRoot(); err != nil {
			return err
		}
	}
	if opts.archive && !cfg.Archive.Enabled() {
		return appErr.UsageError("--archive needs archive.endpoint and archive.bucket in the config")
	}

	if err := orchestrator.PinSelf(cfg.Cores.Orchestrator); err != nil {
		return err
	}

	output := config.Resolve(base, outputPathOrDefault(opts.output))
	roles := []*role{victim}
	if attacker != nil {
		roles = append(roles, attacker)
	}
	defer func() {
		err = multierr.Append(err, releaseRoles(roles))
	}()

	var backend counter.Backend
	if !opts.monitorOnly {
		if backend, err = counter.Probe(cfg.Backend); err != nil {
			return err
		}
		logger.Info(ctx, "counter backend selected", zap.String("backend", backend.Name()))
		if err := openGroups(backend, victim, attacker); err != nil {
			return err
		}
		if err := openSinks(output, backend.FixedCounters(), victim, attacker); err != nil {
			return err
		}
	}

	launcher, err := orchestrator.NewLauncher(orchestrator.Config{HelperPath: helperPath(cfg.HelperPath, base)})
	if err != nil {
		return err
	}
	realtime := cfg.Realtime && !opts.noRealtime && !opts.monitorOnly
	if err := prepareSubject(victim, victimPath, opts.victimParams, opts.victimEnv, realtime); err != nil {
		return err
	}
	if attacker != nil {
		if err := prepareSubject(attacker, attackerPath, opts.attackerParams, opts.attackerEnv, realtime); err != nil {
			return err
		}
	}

	loopOpts := measure.Options{
		Repeat:      cfg.Repeat,
		MonitorOnly: opts.monitorOnly,
		Release:     opts.release,
	}
	if opts.verbose && backend != nil {
		fixed := backend.FixedCounters()
		loopOpts.OnSample = func(r subject.Role, rep int, values result.Sample) {
			specs := victim.specs
			if r == subject.Attacker {
				specs = attacker.specs
			}
			result.Dump(os.Stdout, string(r), rep, fixed, specs, values)
		}
	}

	var attackerPart *measure.Participant
	if attacker != nil {
		p := participant(launcher, attacker)
		attackerPart = &p
	}
	loop, err := measure.New(loopOpts, participant(launcher, victim), attackerPart)
	if err != nil {
		return err
	}

	logger.Info(ctx, "measurement started",
		zap.Int("repeat", cfg.Repeat),
		zap.Bool("attack", opts.attack()),
		zap.Bool("invert", opts.release.Invert),
		zap.Bool("sync", opts.release.Synchronous),
		zap.Duration("delay", opts.release.Delay),
		zap.Bool("monitor_only", opts.monitorOnly),
		zap.String("output", output),
	)
	if err := loop.Run(ctx); err != nil {
		logger.Error(ctx, "measurement aborted", zap.Error(err))
		return err
	}
	logger.Info(ctx, "measurement finished", zap.Int("repetitions", cfg.Repeat))

	if opts.monitorOnly {
		return nil
	}
	paths := resultPaths(victim, attacker)
	if err := closeSinks(roles); err != nil {
		return err
	}
	if err := privilege.RestoreOwnership(paths...); err != nil {
		return err
	}
	if opts.archive {
		store, err := archive.NewMinIOStore(cfg.Archive)
		if err != nil {
			return err
		}
		if _, err := archive.NewArchiver(cfg.Archive, store).Upload(ctx, runID, paths...); err != nil {
			return err
		}
	}
	return nil
}

func configPathOrDefault(p string) string {
	if p == "" {
		return config.DefaultConfigPath
	}
	return p
}

func outputPathOrDefault(p string) string {
	if p == "" {
		return config.DefaultOutputPath
	}
	return p
}

func applyOverrides(cfg *config.AppConfig, opts options) {
	if opts.repeat > 0 {
		cfg.Repeat = opts.repeat
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.logLevel != "" {
		cfg.Logger.Level = opts.logLevel
	}
	if opts.noRealtime {
		cfg.Realtime = false
	}
}

// helperPath prefers an explicit setting, then a subject-init next to this executable.
func helperPath(configured, base string) string {
	if configured != "" {
		return config.ResolveExecutable(base, configured)
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), helperName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return helperName
}

func sameIDs(a, b counter.Specs) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID() != b[i].ID() || a[i].Config != b[i].Config {
			return false
		}
	}
	return true
}

// openGroups allocates one group per core; an attacker on the victim's core reads the victim's group.
func openGroups(backend counter.Backend, victim, attacker *role) error {
	g, err := backend.Open(victim.core, victim.specs)
	if err != nil {
		return err
	}
	victim.group = g
	if err := g.DisableAll(); err != nil {
		return err
	}
	if attacker == nil {
		return nil
	}
	if attacker.core == victim.core {
		attacker.group = victim.group
		attacker.shared = true
		return nil
	}
	if attacker.group, err = backend.Open(attacker.core, attacker.specs); err != nil {
		return err
	}
	return attacker.group.DisableAll()
}

func openSinks(output string, fixed []string, victim, attacker *role) error {
	var err error
	if victim.sink, err = result.Open(output, append(append([]string(nil), fixed...), victim.specs.IDs()...)); err != nil {
		return err
	}
	if attacker == nil {
		return nil
	}
	attacker.sink, err = result.Open(result.AttackerPath(output), append(append([]string(nil), fixed...), attacker.specs.IDs()...))
	return err
}

func prepareSubject(r *role, path string, params, env []string, realtime bool) error {
	g, err := gate.New("pmc-" + string(r.name) + "-gate")
	if err != nil {
		return err
	}
	r.gate = g

	b := subject.NewBuilder(r.name, path).
		Params(params...).
		Env(env...).
		Core(r.core).
		Realtime(realtime)
	if r.group != nil && r.group.Handle() != nil {
		b.GroupHandle(orchestrator.GroupFd)
	}
	r.subj, err = b.Build()
	return err
}

func participant(l orchestrator.Launcher, r *role) measure.Participant {
	p := measure.Participant{
		Role: r.name,
		Core: r.core,
		Gate: r.gate,
		Launch: func(ctx context.Context) (measure.Process, error) {
			var handle *os.File
			if r.group != nil {
				handle = r.group.Handle()
			}
			proc, err := l.Launch(logger.WithRole(ctx, string(r.name)), r.subj, r.gate, handle)
			if err != nil {
				return nil, err
			}
			return proc, nil
		},
	}
	if r.group != nil {
		p.Group = r.group
	}
	if r.sink != nil {
		p.Sink = r.sink
	}
	return p
}

func resultPaths(victim, attacker *role) []string {
	paths := []string{victim.sink.Path()}
	if attacker != nil && attacker.sink != nil {
		paths = append(paths, attacker.sink.Path())
	}
	return paths
}

func closeSinks(roles []*role) error {
	var err error
	for _, r := range roles {
		if r.sink != nil {
			err = multierr.Append(err, r.sink.Close())
			r.sink = nil
		}
	}
	return err
}

// releaseRoles restores the counters and frees every resource, collecting all failures.
func releaseRoles(roles []*role) error {
	err := closeSinks(roles)
	for _, r := range roles {
		if r.group != nil && !r.shared {
			err = multierr.Append(err, r.group.ReenableAll())
			err = multierr.Append(err, r.group.Close())
		}
		if r.gate != nil {
			err = multierr.Append(err, r.gate.Close())
		}
	}
	return err
}
