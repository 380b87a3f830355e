// Package trap is the merged SYSCALL/Ring-3 isolation and
// interrupt/exception dispatch layer (spec §4.6, C6, and §4.10, C10).
// Exception and IRQ dispatch follows the teacher's `trapstub` shape
// (main.go: nosplit, switch on trap number, no allocation/panic in the
// hot path for IRQs) generalized to cover the full exception range the
// spec requires; SYSCALL MSR setup and the Ring-0/Ring-3 return
// trampoline are grounded on iansmith-mazarin's syscall dispatch style
// and gopheros's exception-handler registration
// (`handleExceptionWithCodeFn`).
package trap

// Exception vectors 0-31, x86_64 architectural assignments (spec
// §4.10: "exceptions 0-31 bound to named handlers").
const (
	DivideError = iota
	Debug
	NMI
	Breakpoint
	Overflow
	BoundRange
	InvalidOpcode
	DeviceNotAvailable
	DoubleFault
	CoprocessorSegmentOverrun
	InvalidTSS
	SegmentNotPresent
	StackFault
	GeneralProtection
	PageFault
	_reserved15
	X87FloatingPoint
	AlignmentCheck
	MachineCheck
	SIMDFloatingPoint
	Virtualization
	ControlProtection
	_reserved22
	_reserved23
	_reserved24
	_reserved25
	_reserved26
	_reserved27
	HypervisorInjection
	VMMCommunication
	Security
	_reserved31
)

// NumExceptions is the fixed architectural exception range (spec
// "exceptions 0-31").
const NumExceptions = 32

// IRQ vectors start right after the exception range; vector 32 is
// wired to the timer (spec: "timer to vector 32 (drives C5)").
const (
	IRQBase = NumExceptions
	Timer   = IRQBase + 0
	Keyboard = IRQBase + 1
	COM1     = IRQBase + 4
	Mouse    = IRQBase + 12
	Spurious = IRQBase + 15
	IRQLast  = IRQBase + 15
)

// SyscallVec is not a real IDT vector (SYSCALL bypasses the IDT
// entirely, reaching the kernel via LSTAR instead) but shares the
// TF_TRAP-tagged Frame/Dispatch plumbing every other entry path uses,
// so it gets a slot one past the real vector range rather than a
// second dispatch mechanism (spec §4.9 "Entry": "SYSCALL... arrives
// from C6 with seven arguments", reusing the frame path C10 already
// built).
const SyscallVec = IRQLast + 1

// NumVectors is the total size of the dispatch table.
const NumVectors = SyscallVec + 1

// hasErrorCode reports whether the CPU itself pushes an error code
// for this exception vector (x86_64 architectural fact, used to
// interpret TF_TRAPNO/the frame layout correctly at the entry stub
// boundary — kpio's TrapFrame always reserves the slot, zero-filled
// when the CPU doesn't supply one, per defs.TFSIZE's fixed layout).
func hasErrorCode(vector int) bool {
	switch vector {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackFault,
		GeneralProtection, PageFault, AlignmentCheck, ControlProtection,
		VMMCommunication, Security:
		return true
	default:
		return false
	}
}
