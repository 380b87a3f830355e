package proc

import (
	"kpio/internal/defs"
	"kpio/internal/mem/vmm"
)

// mmapBase is the first address the bump-pointer mmap allocator hands
// out, well clear of the ELF image/heap and well under USER_ADDR_MAX.
const mmapBase defs.Va_t = 0x0000_7000_0000_0000

// Sbrk implements brk(2): requested == 0 queries the current break;
// otherwise, if requested grows the break, the new range is added as
// a demand-zero anonymous VMA (spec §4.4's brk field, resolved via
// C2's ordinary page-fault path rather than eagerly mapped). Shrinking
// the break is accepted but does not currently reclaim pages — Linux
// itself treats most brk(negative) callers as best-effort.
func (t *Task) Sbrk(requested defs.Va_t) defs.Va_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if requested == 0 {
		return t.Brk
	}
	if requested > t.Brk {
		t.AS.AddVMA(&vmm.VMA{Start: t.Brk, End: requested, Perms: defs.PTE_U | defs.PTE_W, Backing: vmm.BackingAnon})
	}
	t.Brk = requested
	return t.Brk
}

// NextMmapBase hands out the next free range for an anonymous mmap
// (spec §4.9 mmap), bump-allocated since kpio has no general VMA
// "find a gap" search and every call here is a distinct fresh mapping.
func (t *Task) NextMmapBase(size defs.Va_t) defs.Va_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mmapNext == 0 {
		t.mmapNext = mmapBase
	}
	start := t.mmapNext
	t.mmapNext += size
	return start
}

// SetSigHandler installs handler for 1-indexed signal sig (rt_sigaction,
// spec §6 "Signal numbers").
func (t *Task) SetSigHandler(sig int, handler defs.Va_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sighand[sig-1].Handler = handler
}

// SetFSBase/FSBase back arch_prctl(ARCH_SET_FS/ARCH_GET_FS), musl's
// thread-local-storage base (spec §4.9 "arch_prctl(ARCH_SET_FS) writes
// the FS-base MSR for TLS"). They only record the value, which
// ARCH_GET_FS reads back; no code in this module loads it into the
// FS-base MSR.
func (t *Task) SetFSBase(va defs.Va_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fsBase = va
}

func (t *Task) FSBase() defs.Va_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fsBase
}

// SetExecRSP/TakeExecRSP pass the stack pointer execve built back out
// to the trap-entry bridge: Router.Dispatch's return value is RAX-only
// (every other syscall only ever rewrites that one register), but a
// successful execve must also replace RSP, so the new value takes this
// one-shot side channel instead of widening Dispatch's signature for a
// single caller. TakeExecRSP clears the value it returns so a later,
// unrelated syscall never observes a stale RSP from a previous exec.
func (t *Task) SetExecRSP(rsp defs.Va_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execRSP = rsp
	t.hasExecRSP = true
}

func (t *Task) TakeExecRSP() (defs.Va_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rsp, ok := t.execRSP, t.hasExecRSP
	t.execRSP, t.hasExecRSP = 0, false
	return rsp, ok
}
