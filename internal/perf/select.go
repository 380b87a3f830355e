package perf

// Select is teacher's perfsetup: probe CPUID leaf 0xA (and leaf 1's
// PDCM bit) and pick ArchPMC if the architectural PMC facility looks
// usable, NilCounters otherwise. msr is only consulted if ArchPMC is
// selected.
func Select(cpuid CPUIDFunc, msr MSR) Counters {
	s := detectArchPMC(cpuid)
	if !s.usable() {
		return NilCounters{}
	}
	c := NewArchPMC(msr, cpuid, uint(s.numPMC))
	return c
}
