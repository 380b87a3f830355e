// Package proc is the task and process table (spec §4.4, C4).
// Grounded on the teacher's proc_new/common.Proc_t/common.Fd_t
// (main.go): monotonically assigned PIDs, a default-fd array seeded
// from fd_stdin/fd_stdout/fd_stderr, ulimit_t's default resource
// limits, and copyfd's refcounted fd-duplication discipline.
package proc

import (
	"sync"

	"kpio/internal/cap"
	"kpio/internal/defs"
	"kpio/internal/mem/vmm"
)

// Id is a monotonically assigned, never-reused task identifier (spec
// §4.4: "TaskId (u64, never reused)").
type Id uint64

// State is a task's scheduling/lifecycle state.
type State int

const (
	Runnable State = iota
	Running
	Blocked
	Zombie
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Zombie:
		return "zombie"
	default:
		return "?"
	}
}

// SavedContext is the callee-saved register block the scheduler's
// naked-function context switch (C5) reads and writes; proc only
// owns storage for it, never interprets its contents.
type SavedContext struct {
	R15, R14, R13, R12, RBX, RBP, RSP uintptr
}

// SigHandler is one entry of the 64-slot signal-handler table spec
// §4.4 names.
type SigHandler struct {
	Handler defs.Va_t // 0 = SIG_DFL
	Flags   uint64
}

const numSignals = 64

// ulimits mirrors the teacher's ulimit_t defaults: 128 MB of memory,
// unlimited open files, 256 VMAs, 1024 child processes.
type ulimits struct {
	pages  uint64
	nofile uint
	novma  uint
	noproc uint
}

var defaultLimits = ulimits{
	pages:  (1 << 27) / defs.PGSIZE,
	nofile: defs.RLIM_INFINITY,
	novma:  1 << 8,
	noproc: 1 << 10,
}

// Task is one schedulable unit and, for the Linux-ABI-facing half of
// the table, one process (spec §4.4). kpio does not model kernel
// threads distinct from their owning process, so Task doubles as
// both "TCB" and "process" the way the teacher's Proc_t does for its
// single-threaded-by-default processes.
type Task struct {
	mu sync.Mutex

	Id       Id
	Parent   Id
	State    State
	Priority int

	AS *vmm.AddressSpace

	KStack  []byte
	Context SavedContext
	Slice   int // remaining scheduler ticks, spec §4.5

	Fds     *fdTable
	Caps    *cap.Set // spec §4.4 "capability set"; seeded at boot via cap.Registry.CreateRoot
	Cwd     *Fd
	Uid     uint32
	Gid     uint32
	Sighand [numSignals]SigHandler
	SigMask uint64
	SigPend uint64
	Brk     defs.Va_t

	ExitCode int
	limits   ulimits

	mmapNext defs.Va_t // bump pointer for the syscall router's mmap handler
	fsBase   defs.Va_t // arch_prctl(ARCH_SET_FS) TLS base

	execRSP    defs.Va_t // new RSP from the most recent execve, see SetExecRSP/TakeExecRSP
	hasExecRSP bool

	waiters chan struct{} // closed once this task becomes Zombie
}

func (t *Task) String() string { return "task" }
