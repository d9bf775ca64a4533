package counter

import (
	appErr "pmcharness/pkg/errors"
)

// Intel architectural performance monitoring registers.
const (
	intelGlobalCtrl   uint32 = 0x38F
	intelFixedCtrCtrl uint32 = 0x38D
	intelPerfEvtSel0  uint32 = 0x186
	intelPMC0         uint32 = 0xC1
	intelFixedCtr0    uint32 = 0x309

	intelMaxCounters   = 8
	intelFixedCounters = 3

	// user-mode counting on all three fixed counters
	intelFixedCtrlUser uint64 = 2 | 2<<4 | 2<<8
	// PMC0..3 and FIXED0..2
	intelGlobalEnable uint64 = 0xF | 7<<32
)

var intelFixedNames = []string{"INSTRUCTIONS_RETIRED", "CYCLES", "REF_CYCLES"}

// IntelBackend drives general and fixed counters through MSRs.
type IntelBackend struct {
	open RegisterOpener
}

func NewIntelBackend(open RegisterOpener) *IntelBackend {
	return &IntelBackend{open: open}
}

func (b *IntelBackend) Name() string { return BackendIntel }

func (b *IntelBackend) FixedCounters() []string {
	return append([]string(nil), intelFixedNames...)
}

func (b *IntelBackend) Open(core int, specs Specs) (Group, error) {
	if len(specs) > intelMaxCounters {
		return nil, appErr.Newf(appErr.TooManyCounters, "%d counters configured, core %d supports %d", len(specs), core, intelMaxCounters)
	}
	rf, err := b.open(core)
	if err != nil {
		return nil, err
	}
	g := &intelGroup{registerGroup{core: core, rf: rf, specs: specs}}
	if err := g.Arm(); err != nil {
		_ = rf.Close()
		return nil, err
	}
	return g, nil
}

type intelGroup struct {
	registerGroup
}

func (g *intelGroup) Len() int { return intelFixedCounters + len(g.specs) }

func (g *intelGroup) Arm() error {
	if err := g.program(intelGlobalCtrl, 0); err != nil {
		return err
	}
	if err := g.program(intelFixedCtrCtrl, intelFixedCtrlUser); err != nil {
		return err
	}
	for i := 0; i < intelFixedCounters; i++ {
		if err := g.program(intelFixedCtr0+uint32(i), 0); err != nil {
			return err
		}
	}
	for i, spec := range g.specs {
		if err := g.program(intelPerfEvtSel0+uint32(i), spec.Config); err != nil {
			return err
		}
	}
	for i := range g.specs {
		if err := g.program(intelPMC0+uint32(i), 0); err != nil {
			return err
		}
	}
	return nil
}

func (g *intelGroup) Reset() error {
	for i := 0; i < intelFixedCounters; i++ {
		if err := g.write(intelFixedCtr0+uint32(i), 0); err != nil {
			return err
		}
	}
	for i := range g.specs {
		if err := g.write(intelPMC0+uint32(i), 0); err != nil {
			return err
		}
	}
	return nil
}

func (g *intelGroup) Read() ([]uint64, error) {
	values := make([]uint64, 0, g.Len())
	for i := 0; i < intelFixedCounters; i++ {
		v, err := g.read(intelFixedCtr0 + uint32(i))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	for i := range g.specs {
		v, err := g.read(intelPMC0 + uint32(i))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (g *intelGroup) DisableAll() error {
	return g.write(intelGlobalCtrl, 0)
}

func (g *intelGroup) ReenableAll() error {
	return g.write(intelGlobalCtrl, intelGlobalEnable)
}
