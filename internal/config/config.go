package config

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"pmcharness/internal/archive"
	"pmcharness/internal/counter"
	appErr "pmcharness/pkg/errors"
	"pmcharness/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "conf/monitor.yaml"
	DefaultOutputPath = "results/monitor.out"

	defaultRepeat       = 1
	defaultVictimCore   = 1
	defaultAttackerCore = 2
)

// Environment variables describing the research tree layout.
const (
	EnvHome    = "SPEC_H"
	EnvBuild   = "SPEC_B"
	EnvInstall = "SPEC_I"
)

// CoresConfig assigns each role to a core.
type CoresConfig struct {
	Orchestrator int `yaml:"orchestrator"`
	Victim       int `yaml:"victim"`
	Attacker     int `yaml:"attacker"`
}

// CounterConfig is one counter entry as written in YAML.
type CounterConfig struct {
	Key         string `yaml:"key"`
	Mask        string `yaml:"mask"`
	Config      string `yaml:"config"`
	Description string `yaml:"description"`
}

// AppConfig holds monitor settings.
type AppConfig struct {
	Backend          string          `yaml:"backend"`
	Repeat           int             `yaml:"repeat"`
	HelperPath       string          `yaml:"helperPath"`
	Cores            CoresConfig     `yaml:"cores"`
	Realtime         bool            `yaml:"realtime"`
	Logger           logger.Config   `yaml:"logger"`
	Counters         []CounterConfig `yaml:"counters"`
	AttackerCounters []CounterConfig `yaml:"attackerCounters"`
	Archive          archive.Config  `yaml:"archive"`
}

// Default returns the configuration used when no file overrides it.
func Default() AppConfig {
	return AppConfig{
		Backend:  counter.BackendAuto,
		Repeat:   defaultRepeat,
		Realtime: true,
		Cores: CoresConfig{
			Orchestrator: 0,
			Victim:       defaultVictimCore,
			Attacker:     defaultAttackerCore,
		},
		Logger: logger.Config{Level: "info", Format: "console", OutputPath: "stderr"},
	}
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return appErr.Wrapf(err, appErr.InvalidPath, "read config file %s failed", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return appErr.Wrapf(err, appErr.InvalidConfig, "parse config file %s failed", path)
	}
	return nil
}

// Load reads path over the defaults. When optional is set a missing file yields the defaults.
func Load(path string, optional bool) (*AppConfig, error) {
	cfg := Default()
	if err := loadYAML(path, &cfg); err != nil {
		var pathErr *fs.PathError
		if !(optional && errors.As(err, &pathErr) && errors.Is(pathErr, fs.ErrNotExist)) {
			return nil, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) normalize() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "":
		c.Backend = counter.BackendAuto
	case counter.BackendAuto, counter.BackendIntel, counter.BackendAMD, counter.BackendPerf:
	default:
		return appErr.New(appErr.InvalidConfig).WithMessagef("unknown backend %q", c.Backend)
	}
	if c.Repeat <= 0 {
		c.Repeat = defaultRepeat
	}
	if c.Cores.Orchestrator < 0 || c.Cores.Victim < 0 || c.Cores.Attacker < 0 {
		return appErr.New(appErr.InvalidConfig).WithMessage("cores must not be negative")
	}
	c.Archive.ApplyDefaults()
	return nil
}

// VictimSpecs parses the victim counter list.
func (c *AppConfig) VictimSpecs() (counter.Specs, error) {
	return parseSpecs(c.Counters)
}

// AttackerSpecs parses the attacker counter list, falling back to the victim's.
func (c *AppConfig) AttackerSpecs() (counter.Specs, error) {
	if len(c.AttackerCounters) == 0 {
		return parseSpecs(c.Counters)
	}
	return parseSpecs(c.AttackerCounters)
}

func parseSpecs(entries []CounterConfig) (counter.Specs, error) {
	if len(entries) == 0 {
		return nil, appErr.New(appErr.InvalidConfig).WithMessage("no counters configured")
	}
	specs := make(counter.Specs, 0, len(entries))
	for _, e := range entries {
		value, err := counter.ParseConfig(e.Config)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.InvalidConfig, "counter %q", e.Key)
		}
		specs = append(specs, counter.Spec{
			Key:         strings.TrimSpace(e.Key),
			Mask:        strings.TrimSpace(e.Mask),
			Config:      value,
			Description: e.Description,
			Full:        strings.TrimSpace(e.Config),
		})
	}
	if err := specs.Validate(); err != nil {
		return nil, err
	}
	return specs, nil
}

// BaseDir is the directory relative paths are resolved against: $SPEC_I, else the working directory.
func BaseDir() string {
	if dir := os.Getenv(EnvInstall); dir != "" {
		return dir
	}
	return "."
}

// Resolve anchors a relative path at base.
func Resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// ResolveExecutable anchors a relative executable at base. A bare command name that
// does not exist under base is left for $PATH lookup.
func ResolveExecutable(base, path string) string {
	if path == "" || strings.Contains(path, "/") {
		return Resolve(base, path)
	}
	candidate := Resolve(base, path)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return path
}

// CheckExecutable verifies a resolved subject path names an executable regular file.
// Bare names are looked up in $PATH.
func CheckExecutable(path string) error {
	if path == "" {
		return appErr.UsageError("executable path is empty")
	}
	if !strings.Contains(path, "/") {
		if _, err := exec.LookPath(path); err != nil {
			return appErr.Wrapf(err, appErr.InvalidPath, "executable %s not found", path)
		}
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return appErr.Wrapf(err, appErr.InvalidPath, "executable %s does not exist", path)
	}
	if info.IsDir() {
		return appErr.Newf(appErr.InvalidPath, "executable %s is a directory", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return appErr.Newf(appErr.InvalidPath, "%s is not executable", path)
	}
	return nil
}
