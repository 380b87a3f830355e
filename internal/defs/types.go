package defs

// Pa_t is a physical address; Va_t a virtual one. Keeping them as
// distinct types (rather than bare uintptr everywhere) catches the
// classic "mapped the physical address as if it were virtual" bug at
// compile time, the way the teacher's common.Pa_t does.
type Pa_t uintptr
type Va_t uintptr

const (
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT
	PGOFFSET = PGSIZE - 1
	PGMASK   = ^uintptr(PGOFFSET)
)

// Page table entry flags, x86_64 4-level paging. Names match the
// teacher's PTE_* vocabulary (main.go, vm/as.go) plus the two
// kernel-added software bits (PTE_COW, PTE_WASCOW) biscuit uses to
// track copy-on-write state across a fault.
const (
	PTE_P      = uintptr(1 << 0) // present
	PTE_W      = uintptr(1 << 1) // writable
	PTE_U      = uintptr(1 << 2) // user-accessible
	PTE_PWT    = uintptr(1 << 3)
	PTE_PCD    = uintptr(1 << 4)
	PTE_A      = uintptr(1 << 5) // accessed
	PTE_D      = uintptr(1 << 6) // dirty
	PTE_PS     = uintptr(1 << 7) // page size (2M/1G leaf)
	PTE_G      = uintptr(1 << 8) // global
	// software-defined bits, available since the CPU ignores bits 9-11
	PTE_COW     = uintptr(1 << 9)  // copy-on-write
	PTE_WASCOW  = uintptr(1 << 10) // was COW, now exclusively owned
	PTE_NX      = uintptr(1 << 63) // no-execute

	PTE_ADDR = uintptr(0x000ffffffffff000)
)

// TFSIZE is the number of uintptr-sized slots the trap-frame-save path
// (C6 SYSCALL entry / C10 interrupt entry) pushes onto the kernel
// stack, mirroring the teacher's common.TFSIZE.
const TFSIZE = 24

// Trap-frame slot indices, matching the teacher's TF_* constants
// (main.go's tfdump references TF_RIP, TF_RAX, TF_RDI, TF_RSI, TF_RBX,
// TF_RCX, TF_RDX, TF_RSP; the remainder are added for the full
// register set the C6/C9 contract requires).
const (
	TF_GSBASE = iota
	TF_FSBASE
	TF_R15
	TF_R14
	TF_R13
	TF_R12
	TF_R11
	TF_R10
	TF_R9
	TF_R8
	TF_RBP
	TF_RDI
	TF_RSI
	TF_RDX
	TF_RCX
	TF_RBX
	TF_RAX
	TF_TRAPNO
	TF_RIP
	TF_CS
	TF_RFLAGS
	TF_RSP
	TF_SS
	TF_TRAP // alias slot used by IRQ dispatch to store the vector number
)

// USER_ADDR_MAX is the first address no user pointer may reach or
// exceed (spec §4.2, §4.9, invariant 7).
const USER_ADDR_MAX = Va_t(0x0000_8000_0000_0000)

// RLIM_INFINITY matches the teacher's ulimit_t sentinel.
const RLIM_INFINITY = ^uint(0)
