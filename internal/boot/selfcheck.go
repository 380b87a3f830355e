package boot

import (
	"fmt"
	"unsafe"

	"kpio/internal/defs"
	"kpio/internal/trap"
)

// SelfCheck is the structchk-equivalent (SPEC_FULL.md §12.2): it
// panics before any task is scheduled if a struct-size assumption the
// trap path or the per-CPU entry stub depends on does not hold. These
// are exactly the assumptions that can never be caught by the Go
// compiler (asm-side hardcoded offsets, a frame layout asm and Go must
// agree on byte-for-byte) and that this module can never verify by
// running the toolchain, so they are checked at the one point in the
// boot path before anything depends on them being right.
func SelfCheck() {
	if got := unsafe.Sizeof(trap.Frame{}); got != defs.TFSIZE*unsafe.Sizeof(uintptr(0)) {
		panic(fmt.Sprintf("boot: trap.Frame size %d does not match defs.TFSIZE*8 (%d)", got, defs.TFSIZE*unsafe.Sizeof(uintptr(0))))
	}
	if off := unsafe.Offsetof(trap.PerCPU{}.KernelStack); off != 0 {
		panic(fmt.Sprintf("boot: trap.PerCPU.KernelStack must be the first field (offset 0), got %d", off))
	}
}
