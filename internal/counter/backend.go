package counter

import (
	"os"
	"strings"

	appErr "pmcharness/pkg/errors"

	"github.com/klauspost/cpuid/v2"
)

// Backend names accepted by Probe.
const (
	BackendAuto  = "auto"
	BackendIntel = "intel"
	BackendAMD   = "amd"
	BackendPerf  = "perf"
)

// Backend hides how a vendor's counters are reached.
type Backend interface {
	// Name reports the selected backend.
	Name() string
	// FixedCounters lists fixed-function counters read ahead of the configured ones.
	FixedCounters() []string
	// Open allocates the counter group for one core and programs specs.
	// The counters are left disabled.
	Open(core int, specs Specs) (Group, error)
}

// Group owns the counters of one role on one core for the whole run.
type Group interface {
	// Arm quiesces the group, programs every spec and zeroes all counters.
	Arm() error
	// Reset zeroes all counters, fixed ones included.
	Reset() error
	// Read returns fixed counters first, then configured counters in spec order.
	Read() ([]uint64, error)
	DisableAll() error
	ReenableAll() error
	// Handle is the kernel group descriptor a subject may inherit, nil for register files.
	Handle() *os.File
	// Len is the number of values Read returns.
	Len() int
	Close() error
}

// Probe selects the backend once for the process lifetime.
func Probe(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendAuto:
		return Probe(probeVendor())
	case BackendIntel:
		return NewIntelBackend(OpenMSRDevice), nil
	case BackendAMD:
		return NewAMDBackend(OpenMSRDevice), nil
	case BackendPerf:
		b, err := NewPerfBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, appErr.New(appErr.InvalidConfig).WithMessagef("unknown counter backend %q", name)
	}
}

func probeVendor() string {
	return vendorBackend(cpuid.CPU.VendorID)
}

func vendorBackend(vendor cpuid.Vendor) string {
	switch vendor {
	case cpuid.Intel:
		return BackendIntel
	case cpuid.AMD, cpuid.Hygon:
		return BackendAMD
	default:
		return BackendPerf
	}
}
