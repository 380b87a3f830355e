package syscall

import (
	"sync"

	"kpio/internal/defs"
)

// futexState is the global address-keyed wait table backing
// FUTEX_WAIT/FUTEX_WAKE (spec §4.9). Kept self-contained in this
// package rather than routed through internal/sched's blocked map:
// sched.BlockReason (spec §9's tagged-variant-over-interface style)
// has no futex-with-address payload, only bare BlockChannel/BlockShm/
// BlockWait4/BlockTimer tags, and widening that enum is out of C9's
// scope — this table gives futex(2) correct wait/wake semantics on
// its own terms, a plain condition-variable-per-address design like
// the teacher's own Cond-based wait queues elsewhere in the pack.
type futexState struct {
	mu      sync.Mutex
	waiters map[defs.Va_t][]chan struct{}
}

var futexWaitTable = &futexState{waiters: make(map[defs.Va_t][]chan struct{})}

// wait blocks the calling goroutine until woken by a matching
// FUTEX_WAKE at the same address.
func (f *futexState) wait(addr defs.Va_t) defs.Err_t {
	f.mu.Lock()
	ch := make(chan struct{})
	f.waiters[addr] = append(f.waiters[addr], ch)
	f.mu.Unlock()
	<-ch
	return defs.OK
}

// wake releases up to n waiters at addr, oldest first, returning how
// many actually woke (spec §4.9: "wakes up to val waiters").
func (f *futexState) wake(addr defs.Va_t, n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.waiters[addr]
	woke := 0
	for woke < n && len(q) > 0 {
		close(q[0])
		q = q[1:]
		woke++
	}
	if len(q) == 0 {
		delete(f.waiters, addr)
	} else {
		f.waiters[addr] = q
	}
	return woke
}
