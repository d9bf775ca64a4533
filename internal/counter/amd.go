package counter

import (
	appErr "pmcharness/pkg/errors"
)

// AMD legacy core performance counters.
const (
	amdPerfEvtSel0 uint32 = 0xC0010000
	amdPerfCtr0    uint32 = 0xC0010004

	amdMaxCounters = 4
)

// AMDBackend drives the four legacy counters through MSRs. It has no fixed counters.
type AMDBackend struct {
	open RegisterOpener
}

func NewAMDBackend(open RegisterOpener) *AMDBackend {
	return &AMDBackend{open: open}
}

func (b *AMDBackend) Name() string { return BackendAMD }

func (b *AMDBackend) FixedCounters() []string { return nil }

func (b *AMDBackend) Open(core int, specs Specs) (Group, error) {
	if len(specs) > amdMaxCounters {
		return nil, appErr.Newf(appErr.TooManyCounters, "%d counters configured, core %d supports %d", len(specs), core, amdMaxCounters)
	}
	rf, err := b.open(core)
	if err != nil {
		return nil, err
	}
	g := &amdGroup{registerGroup{core: core, rf: rf, specs: specs}}
	if err := g.Arm(); err != nil {
		_ = rf.Close()
		return nil, err
	}
	return g, nil
}

type amdGroup struct {
	registerGroup
}

func (g *amdGroup) Len() int { return len(g.specs) }

// Arm clears every select before programming so no counter runs while others are zeroed.
func (g *amdGroup) Arm() error {
	for i := range g.specs {
		if err := g.program(amdPerfEvtSel0+uint32(i), 0); err != nil {
			return err
		}
	}
	for i := range g.specs {
		if err := g.program(amdPerfCtr0+uint32(i), 0); err != nil {
			return err
		}
	}
	for i, spec := range g.specs {
		if err := g.program(amdPerfEvtSel0+uint32(i), spec.Config); err != nil {
			return err
		}
	}
	return nil
}

func (g *amdGroup) Reset() error {
	for i := range g.specs {
		if err := g.write(amdPerfCtr0+uint32(i), 0); err != nil {
			return err
		}
	}
	return nil
}

func (g *amdGroup) Read() ([]uint64, error) {
	values := make([]uint64, 0, len(g.specs))
	for i := range g.specs {
		v, err := g.read(amdPerfCtr0 + uint32(i))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (g *amdGroup) DisableAll() error {
	for i := range g.specs {
		if err := g.write(amdPerfEvtSel0+uint32(i), 0); err != nil {
			return err
		}
	}
	return nil
}

// ReenableAll restores the programmed selects; the legacy counters have no global enable.
func (g *amdGroup) ReenableAll() error {
	for i, spec := range g.specs {
		if err := g.write(amdPerfEvtSel0+uint32(i), spec.Config); err != nil {
			return err
		}
	}
	return nil
}
