package trap

// HandlerFn processes one trap. Exception handlers may inspect and
// correct the frame (e.g. demand-zero/COW resolution) to make the
// faulting instruction retryable; IRQ handlers ignore the frame.
type HandlerFn func(f *Frame)

// FatalFn is invoked when an exception has no registered handler:
// spec §4.10 "Ring-3 non-recoverable faults terminate the task;
// Ring-0 faults panic." The dispatcher itself only classifies
// Ring-0-vs-Ring-3; FatalFn carries out the actual termination, since
// that requires reaching into C4's task table.
type FatalFn func(f *Frame)

// EOIFn acknowledges the local APIC once an IRQ handler has run (spec
// §4.10: "every hardware handler ends with an APIC EOI"). The
// teacher's equivalent write happens inside the patched runtime
// itself ("the LAPIC EOI happens in the runtime..." — main.go); kpio
// exposes the same seam as a replaceable function so tests can run
// dispatch logic without touching real MMIO.
type EOIFn func()

var EOI EOIFn = func() {}

var (
	exceptions     [NumExceptions]HandlerFn
	irqs           [NumVectors - IRQBase]HandlerFn
	onFatal        FatalFn
	onSpurious     func()
	syscallHandler HandlerFn
)

// RegisterException installs the handler for exception vector v.
// Like the teacher's IDT setup, registration happens once at boot
// before interrupts are enabled; Dispatch reads these tables with no
// locking, the same assumption the teacher's trapstub makes about
// its own dispatch switch.
func RegisterException(v int, h HandlerFn) { exceptions[v] = h }

// RegisterIRQ installs the handler for IRQ vector v (v in
// [IRQBase, IRQLast]).
func RegisterIRQ(v int, h HandlerFn) { irqs[v-IRQBase] = h }

// SetFatalHandler installs the callback used when an unhandled
// exception arrives; see FatalFn.
func SetFatalHandler(fn FatalFn) { onFatal = fn }

// SetSpuriousHandler installs the callback for the spurious vector,
// which otherwise only consumes an EOI and does nothing (spec §4.10
// "spurious to a no-op").
func SetSpuriousHandler(fn func()) { onSpurious = fn }

// RegisterSyscall installs the handler run for SyscallVec (spec §4.9
// "Entry"). Unlike an IRQ, a syscall issues no EOI: it isn't hardware
// asserting a line, it's software already inside the kernel.
func RegisterSyscall(h HandlerFn) { syscallHandler = h }

// Dispatch is the entry stub's sole call into Go: it classifies the
// vector in f, runs the registered handler (or the fatal path), and
// issues an EOI for hardware vectors. Mirrors the teacher's
// `trapstub`: the dispatch skeleton itself does not allocate; a
// missing handler for an architectural exception is a boot-
// configuration bug, not a runtime condition, so it panics rather
// than silently continuing (spec §5: "kernel-level invariant
// violations ... panic").
//
//go:nosplit
func Dispatch(f *Frame) {
	v := f.Vector()

	if v == SyscallVec {
		if syscallHandler == nil {
			panic("trap: syscall vector with no handler registered")
		}
		syscallHandler(f)
		return
	}

	if v < NumExceptions {
		if h := exceptions[v]; h != nil {
			h(f)
			return
		}
		if onFatal != nil {
			onFatal(f)
			return
		}
		panic("trap: unhandled exception with no fatal handler installed")
	}

	if v > IRQLast {
		panic("trap: vector out of range")
	}

	switch {
	case v == Spurious:
		if onSpurious != nil {
			onSpurious()
		}
	case irqs[v-IRQBase] != nil:
		irqs[v-IRQBase](f)
	}
	EOI()
}
