package main

import (
	"strings"
	"time"

	"pmcharness/internal/counter"
	"pmcharness/internal/release"
	appErr "pmcharness/pkg/errors"
)

type cliFlags struct {
	victim         string
	attacker       string
	configPath     string
	output         string
	repeat         int
	invert         bool
	delayMicros    int
	sync           bool
	monitorOnly    bool
	victimEnv      []string
	attackerEnv    []string
	victimParams   []string
	attackerParams []string
	verbose        bool
	logLevel       string
	noRealtime     bool
	backend        string
	archive        bool
}

// options are the validated command line.
type options struct {
	victim         string
	attacker       string
	configPath     string
	configExplicit bool
	output         string
	repeat         int
	release        release.Params
	monitorOnly    bool
	victimEnv      []string
	attackerEnv    []string
	victimParams   []string
	attackerParams []string
	verbose        bool
	logLevel       string
	noRealtime     bool
	backend        string
	archive        bool
}

func (o options) attack() bool { return o.attacker != "" }

// validate turns flags into options. It touches no process or hardware state.
func (f *cliFlags) validate(changed func(string) bool) (options, error) {
	if strings.TrimSpace(f.victim) == "" {
		return options{}, appErr.UsageError("a victim executable is required (-v)")
	}
	attack := strings.TrimSpace(f.attacker) != ""
	if !attack {
		switch {
		case f.invert:
			return options{}, appErr.UsageError("--invert requires an attacker (-a)")
		case changed("delay"):
			return options{}, appErr.UsageError("--delay requires an attacker (-a)")
		case len(f.attackerEnv) > 0:
			return options{}, appErr.UsageError("--aenv requires an attacker (-a)")
		case len(f.attackerParams) > 0:
			return options{}, appErr.UsageError("--apar requires an attacker (-a)")
		}
	}
	if changed("delay") && f.delayMicros <= 0 {
		return options{}, appErr.UsageError("--delay must be a positive number of microseconds")
	}
	if changed("repeat") && f.repeat <= 0 {
		return options{}, appErr.UsageError("--repeat must be positive")
	}
	if changed("output") && strings.TrimSpace(f.output) == "" {
		return options{}, appErr.UsageError("--output must not be empty")
	}
	if f.monitorOnly && f.archive {
		return options{}, appErr.UsageError("--archive has nothing to upload with --monitor")
	}
	if f.backend != "" {
		switch strings.ToLower(f.backend) {
		case counter.BackendAuto, counter.BackendIntel, counter.BackendAMD, counter.BackendPerf:
		default:
			return options{}, appErr.UsageError("--backend must be one of auto, intel, amd, perf")
		}
	}

	params := release.Params{
		Attack:      attack,
		Invert:      f.invert,
		Synchronous: f.sync,
	}
	if changed("delay") {
		params.Delay = time.Duration(f.delayMicros) * time.Microsecond
	}
	if err := params.Validate(); err != nil {
		return options{}, err
	}

	return options{
		victim:         f.victim,
		attacker:       f.attacker,
		configPath:     f.configPath,
		configExplicit: changed("config"),
		output:         f.output,
		repeat:         f.repeat,
		release:        params,
		monitorOnly:    f.monitorOnly,
		victimEnv:      f.victimEnv,
		attackerEnv:    f.attackerEnv,
		victimParams:   f.victimParams,
		attackerParams: f.attackerParams,
		verbose:        f.verbose,
		logLevel:       f.logLevel,
		noRealtime:     f.noRealtime,
		backend:        strings.ToLower(f.backend),
		archive:        f.archive,
	}, nil
}
