package trap

// readCR2 is implemented in cr2_amd64.s; like rdmsr/cpuidRaw, reading
// CR2 outside kpio's patched runtime is meaningless (a hosted process
// has no access to the actual fault address a real page fault left
// there).
//
//go:noescape
func readCR2() uintptr

// FaultAddress is CR2's value at exception-entry time, valid only
// inside a registered PageFault handler (spec §4.10 "page fault
// demux"): the CPU leaves the faulting linear address there instead of
// pushing it onto the frame the way it does the error code.
func FaultAddress() uintptr { return readCR2() }

// PageFaultWrite reports whether a page-fault error code's bit 1 (the
// x86_64 architectural "W/R" bit) indicates the fault was a write.
func PageFaultWrite(errorCode uintptr) bool { return errorCode&(1<<1) != 0 }
