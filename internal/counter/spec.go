package counter

import (
	"strconv"
	"strings"

	appErr "pmcharness/pkg/errors"
)

// Spec describes one configured hardware event.
type Spec struct {
	Key         string
	Mask        string
	Config      uint64
	Description string
	// Full is the textual form the config value was given in.
	Full string
}

// ID renders the result-file column identifier: KEY or KEY.MASK.
func (s Spec) ID() string {
	if s.Mask == "" {
		return s.Key
	}
	return s.Key + "." + s.Mask
}

// Specs is the ordered counter list of one role.
type Specs []Spec

// IDs returns the column identifiers in registration order.
func (s Specs) IDs() []string {
	out := make([]string, 0, len(s))
	for _, spec := range s {
		out = append(out, spec.ID())
	}
	return out
}

// Validate enforces non-empty keys and uniqueness by (key, mask).
func (s Specs) Validate() error {
	seen := make(map[[2]string]struct{}, len(s))
	for i, spec := range s {
		if strings.TrimSpace(spec.Key) == "" {
			return appErr.New(appErr.InvalidConfig).WithMessagef("counter %d has no key", i)
		}
		if strings.ContainsAny(spec.ID(), "|\n") {
			return appErr.New(appErr.InvalidConfig).WithMessagef("counter %q contains a reserved character", spec.ID())
		}
		key := [2]string{spec.Key, spec.Mask}
		if _, ok := seen[key]; ok {
			return appErr.New(appErr.InvalidConfig).WithMessagef("duplicate counter %q", spec.ID())
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ParseConfig parses a raw event config in any Go integer base ("0x4300c0", "0b...", "123").
func ParseConfig(raw string) (uint64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, appErr.New(appErr.InvalidConfig).WithMessage("counter config is empty")
	}
	v, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.InvalidConfig, "invalid counter config %q", raw)
	}
	return v, nil
}
