package trap

// cpuidRaw is implemented in cpuid_amd64.s; meaningless under a
// hosted `go test` process the same way rdmsr/wrmsr are.
//
//go:noescape
func cpuidRaw(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// CPUID is internal/perf.CPUIDFunc's real-hardware backing, wired in
// by cmd/kpio instead of perf.NoCPUID.
func CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32) {
	return cpuidRaw(leaf, subleaf)
}

// HWMSR is internal/perf.MSR's (and SetupSyscallMSRs's underlying
// rdmsr/wrmsr's) real-hardware backing, exported so cmd/kpio can wire
// internal/perf straight onto this package's MSR primitives instead
// of maintaining a second copy.
type HWMSR struct{}

func (HWMSR) ReadMSR(msr uint32) uint64     { return rdmsr(msr) }
func (HWMSR) WriteMSR(msr uint32, v uint64) { wrmsr(msr, v) }
