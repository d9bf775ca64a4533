package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pmcharness/internal/counter"
	appErr "pmcharness/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
counters:
  - key: INSTR
    config: "0xc0"
`)
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != counter.BackendAuto || cfg.Repeat != 1 || !cfg.Realtime {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Cores.Victim != 1 || cfg.Cores.Attacker != 2 || cfg.Cores.Orchestrator != 0 {
		t.Fatalf("unexpected cores %+v", cfg.Cores)
	}
	if cfg.Archive.Timeout != 30*time.Second {
		t.Fatalf("archive timeout = %v", cfg.Archive.Timeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
backend: INTEL
repeat: 50
realtime: false
cores: {orchestrator: 3, victim: 0, attacker: 0}
counters:
  - {key: INST_RETIRED, mask: ANY_P, config: "0x4300c0", description: instructions}
  - {key: BR_MISP_RETIRED, config: "0x4300c5"}
attackerCounters:
  - {key: LOADS, config: 1234}
`)
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != counter.BackendIntel || cfg.Repeat != 50 || cfg.Realtime {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Cores.Victim != 0 || cfg.Cores.Orchestrator != 3 {
		t.Fatalf("explicit zero core lost: %+v", cfg.Cores)
	}

	victim, err := cfg.VictimSpecs()
	if err != nil {
		t.Fatalf("victim specs: %v", err)
	}
	if len(victim) != 2 || victim[0].ID() != "INST_RETIRED.ANY_P" || victim[0].Config != 0x4300c0 {
		t.Fatalf("victim specs = %+v", victim)
	}
	attacker, err := cfg.AttackerSpecs()
	if err != nil {
		t.Fatalf("attacker specs: %v", err)
	}
	if len(attacker) != 1 || attacker[0].Config != 1234 || attacker[0].Full != "1234" {
		t.Fatalf("attacker specs = %+v", attacker)
	}
}

func TestAttackerSpecsFallBackToVictim(t *testing.T) {
	cfg := Default()
	cfg.Counters = []CounterConfig{{Key: "INSTR", Config: "0xc0"}}
	specs, err := cfg.AttackerSpecs()
	if err != nil || len(specs) != 1 || specs[0].Key != "INSTR" {
		t.Fatalf("AttackerSpecs() = %+v, %v", specs, err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad yaml", content: "counters: [\n"},
		{name: "bad backend", content: "backend: arm\n"},
		{name: "negative core", content: "cores: {victim: -1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), false)
			if !appErr.Is(err, appErr.UsageFailure) {
				t.Fatalf("expected usage failure, got %v", err)
			}
		})
	}
}

func TestSpecErrors(t *testing.T) {
	tests := []struct {
		name     string
		counters []CounterConfig
	}{
		{name: "none"},
		{name: "bad config", counters: []CounterConfig{{Key: "A", Config: "zz"}}},
		{name: "duplicate", counters: []CounterConfig{{Key: "A", Mask: "M", Config: "1"}, {Key: "A", Mask: "M", Config: "2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Counters = tt.counters
			if _, err := cfg.VictimSpecs(); !appErr.Is(err, appErr.UsageFailure) {
				t.Fatalf("expected usage failure, got %v", err)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := Load(missing, false); !appErr.Is(err, appErr.UsageFailure) {
		t.Fatalf("expected usage failure, got %v", err)
	}
	cfg, err := Load(missing, true)
	if err != nil {
		t.Fatalf("optional load: %v", err)
	}
	if cfg.Repeat != 1 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestResolve(t *testing.T) {
	base := t.TempDir()
	t.Setenv(EnvInstall, base)
	if BaseDir() != base {
		t.Fatalf("BaseDir() = %q", BaseDir())
	}
	if got := Resolve(base, "results/x.out"); got != filepath.Join(base, "results/x.out") {
		t.Fatalf("Resolve() = %q", got)
	}
	if got := Resolve(base, "/abs/x.out"); got != "/abs/x.out" {
		t.Fatalf("Resolve() = %q", got)
	}

	payload := filepath.Join(base, "victim")
	if err := os.WriteFile(payload, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if got := ResolveExecutable(base, "victim"); got != payload {
		t.Fatalf("ResolveExecutable(victim) = %q", got)
	}
	if got := ResolveExecutable(base, "sh"); got != "sh" {
		t.Fatalf("ResolveExecutable(sh) = %q", got)
	}
	if got := ResolveExecutable(base, "bin/attacker"); got != filepath.Join(base, "bin/attacker") {
		t.Fatalf("ResolveExecutable(bin/attacker) = %q", got)
	}

	t.Setenv(EnvInstall, "")
	if BaseDir() != "." {
		t.Fatalf("BaseDir() without %s = %q", EnvInstall, BaseDir())
	}
}

func TestCheckExecutable(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "victim")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	plain := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatalf("write plain: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "executable", path: script},
		{name: "bare name on path", path: "sh"},
		{name: "missing", path: filepath.Join(dir, "missing"), wantErr: true},
		{name: "directory", path: dir, wantErr: true},
		{name: "no execute bit", path: plain, wantErr: true},
		{name: "bare name not on path", path: "pmc-no-such-binary", wantErr: true},
		{name: "empty", path: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExecutable(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckExecutable(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && appErr.ExitCode(err) != 2 {
				t.Fatalf("exit code = %d, want 2", appErr.ExitCode(err))
			}
		})
	}
}
