package perf

// MSR reads and writes model-specific registers, the seam
// ArchPMC.pmcStart/pmcStop push through instead of teacher's
// runtime.Wrmsr/runtime.Rdmsr (also forked-runtime intrinsics, same
// reasoning as CPUIDFunc).
type MSR interface {
	ReadMSR(msr uint32) uint64
	WriteMSR(msr uint32, v uint64)
}

// SimMSR is an in-memory MSR bank, standing in for the real registers
// in any environment that never reaches ring 0 (every test, and any
// hosted run of this module). Not wired to real hardware by design;
// a ring-0 entry point supplies its own MSR backed by the real
// instructions.
type SimMSR struct {
	regs map[uint32]uint64
}

func NewSimMSR() *SimMSR { return &SimMSR{regs: make(map[uint32]uint64)} }

func (s *SimMSR) ReadMSR(msr uint32) uint64 { return s.regs[msr] }

func (s *SimMSR) WriteMSR(msr uint32, v uint64) {
	if s.regs == nil {
		s.regs = make(map[uint32]uint64)
	}
	s.regs[msr] = v
}

const (
	ia32PMC0        = 0xc1
	ia32PerfEvtSel0 = 0x186
)
