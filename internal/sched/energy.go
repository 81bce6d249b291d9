package sched

// EnergyMode is the system-wide power/performance policy, settable at
// runtime (internal/config watches for changes to it).
type EnergyMode int

const (
	Performance EnergyMode = iota
	Balanced
	PowerSaver
)

func (m EnergyMode) String() string {
	switch m {
	case Performance:
		return "PERFORMANCE"
	case Balanced:
		return "BALANCED"
	case PowerSaver:
		return "POWERSAVER"
	}
	return "UNKNOWN"
}

// ParseEnergyMode parses the config-file spelling of an energy mode (the
// same spelling internal/config.Verify accepts).
func ParseEnergyMode(s string) (EnergyMode, bool) {
	switch s {
	case "PERFORMANCE":
		return Performance, true
	case "BALANCED":
		return Balanced, true
	case "POWERSAVER":
		return PowerSaver, true
	}
	return 0, false
}

// CoreType distinguishes performance from efficiency cores on a
// heterogeneous (big.LITTLE-style) topology.
type CoreType int

const (
	PerformanceCore CoreType = iota
	EfficiencyCore
)

// CpuTopology describes which logical CPUs are P-cores, which are E-cores,
// and SMT sibling pairings.
type CpuTopology struct {
	PCores      []uint32
	ECores      []uint32
	SMTSiblings map[uint32]uint32
}

// CoresForHint selects the CPU set a thread with the given energy hint and
// the system's current energy mode should be placed on, falling back to
// whichever set is non-empty if the preferred one has no cores.
func (t *CpuTopology) CoresForHint(hint EnergyHint, mode EnergyMode) []uint32 {
	preferP := func() []uint32 {
		if len(t.PCores) == 0 {
			return t.ECores
		}
		return t.PCores
	}
	preferE := func() []uint32 {
		if len(t.ECores) == 0 {
			return t.PCores
		}
		return t.ECores
	}

	switch hint {
	case LatencySensitive:
		return preferP()
	case Background:
		return preferE()
	}

	// Batch and Inference hints depend on the system-wide energy mode.
	switch mode {
	case Performance:
		return preferP()
	case PowerSaver:
		return preferE()
	default: // Balanced: prefer P-cores but allow E-cores.
		return preferP()
	}
}
