package boot

import "kpio/internal/trap"

// ParkedCPU is an AP enumerated via MADT but not started (SPEC_FULL.md
// §12.1: "parked ... matching teacher's cpus_start/ap_entry's 'wait
// for timer int' park loop"). Only CPU 0 runs the scheduler in this
// release; every other enabled LAPIC gets a PerCPU block sized and
// ready for when AP scheduling is implemented, but no SIPI or
// trampoline is ever sent to it — it stays parked for the lifetime of
// the kernel.
type ParkedCPU struct {
	ApicID uint8
	PerCPU *trap.PerCPU
}

// ParkCPUs allocates a PerCPU block for every enabled MADT CPU entry
// beyond the boot processor (the first enabled entry), honoring a
// cmdline aplim cap if present (mirrors teacher's aplim local in
// cpus_start). stackTop supplies a fresh per-CPU kernel stack's top
// address for each parked AP.
func ParkCPUs(m *MADT, cl CmdLine, stackTop func(apicID uint8) uintptr) []ParkedCPU {
	limit := len(m.CPUs)
	if n, ok := cl.APLimit(); ok && n < limit {
		limit = n
	}

	var parked []ParkedCPU
	seenBoot := false
	for i, c := range m.CPUs {
		if i >= limit {
			break
		}
		if !c.Enabled {
			continue
		}
		if !seenBoot {
			seenBoot = true
			continue
		}
		parked = append(parked, ParkedCPU{
			ApicID: c.ApicID,
			PerCPU: trap.NewPerCPU(int(c.ApicID), stackTop(c.ApicID)),
		})
	}
	return parked
}
