package perf

// CPUIDFunc returns the four GPRs CPUID(leaf, subleaf) would load,
// matching the shape of teacher's forked-runtime runtime.Cpuid. Stock
// Go has no portable CPUID intrinsic (the teacher's patched runtime
// does), so detection is driven through this injectable seam instead:
// a real kernel entry point supplies one backed by the actual CPUID
// instruction, tests supply a canned one.
type CPUIDFunc func(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// NoCPUID always reports "nothing here", the conservative default
// when no real CPUID source is wired up: ArchPMC detection fails and
// Select falls back to NilCounters.
func NoCPUID(leaf, subleaf uint32) (uint32, uint32, uint32, uint32) { return 0, 0, 0, 0 }

// archPMCSupport mirrors teacher's perfsetup: CPUID leaf 0xA reports
// the architectural performance-monitoring version, counter count and
// width; leaf 1's ECX bit 15 (PDCM) must be set for the event-select
// MSR layout this package assumes.
type archPMCSupport struct {
	version  uint32
	numPMC   uint32
	pmcBits  uint32
	evBits   uint32
	cycCount bool
	pdcm     bool
}

func detectArchPMC(cpuid CPUIDFunc) archPMCSupport {
	ax, bx, _, _ := cpuid(0xa, 0)
	_, _, cx, _ := cpuid(0x1, 0)
	return archPMCSupport{
		version:  ax & 0xff,
		numPMC:   (ax >> 8) & 0xff,
		pmcBits:  (ax >> 16) & 0xff,
		evBits:   (ax >> 24) & 0xff,
		cycCount: bx&1 == 0,
		pdcm:     cx&(1<<15) != 0,
	}
}

func (s archPMCSupport) usable() bool {
	return s.pdcm && s.version >= 2 && s.version <= 3 && s.numPMC >= 1 &&
		s.evBits >= 1 && s.cycCount && s.pmcBits >= 32
}

// cpuidFamilyModel mirrors teacher's cpuidfamily; NewArchPMC uses it to
// enable the Xeon 5000-family (family 6, model 0x1e) event encodings.
func cpuidFamilyModel(cpuid CPUIDFunc) (model, family uint32) {
	ax, _, _, _ := cpuid(0x1, 0)
	baseModel := (ax >> 4) & 0xf
	baseFamily := (ax >> 8) & 0xf
	extModel := (ax >> 16) & 0xf
	extFamily := (ax >> 20) & 0xff
	return extModel<<4 + baseModel, extFamily + baseFamily
}
