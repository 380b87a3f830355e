// Package sched is the preemptive scheduler (spec §4.5, C5): 32
// priority-level FIFO ready queues, a 10-tick time slice driven by the
// APIC timer, and a naked-function context switch. Ready-queue and
// block/wake bookkeeping is original construction against spec §4.5
// (the teacher's actual proc.go/swtch assembly was filtered out of
// the retrieval pack); the //go:nosplit / preempt-disable discipline
// around the switch follows the teacher's trapstub style, and the
// runtime-hook shape for parking/waking is cross-checked against
// iansmith-mazarin's go:linkname bridge into runtime.gopark/goready
// (mazboot-golang-main-syscall.go.go) — kpio does not actually park
// goroutines (there is no host scheduler underneath a Ring-0 kernel),
// but the "block is just removal from a ready structure, wake is
// reinsertion" shape is the same idea applied to kpio's own queues.
package sched

import (
	"sync"

	"kpio/internal/proc"
)

// NumPriorities is spec §4.5's "32 priority levels"; 0 is highest
// priority, 31 (Idle) is lowest.
const NumPriorities = 32

// Idle is the priority level spec §4.5 reserves for the idle task.
const Idle = NumPriorities - 1

// TimeSlice is the number of scheduler ticks a task runs before
// `need_reschedule` is set (spec §4.5: "≈100 ms at 100 Hz").
const TimeSlice = 10

// BlockReason tags why a task left the ready queue, spec §4.5's
// "block/wake" primitive expressed as a tagged variant rather than a
// cancellation token (see spec §9's "tagged variants over interface
// hierarchies" guidance). Aliased from proc.BlockReason rather than
// redefined: proc.Blocker is the interface ipc's channels and proc's
// own Wait4 block through, and *Scheduler satisfies it precisely
// because these are the same type, not merely convertible ones.
type BlockReason = proc.BlockReason

const (
	BlockNone    = proc.BlockNone
	BlockChannel = proc.BlockChannel
	BlockShm     = proc.BlockShm
	BlockWait4   = proc.BlockWait4
	BlockTimer   = proc.BlockTimer
)

type blockedTask struct {
	id     proc.Id
	reason BlockReason
}

// Scheduler is the single-CPU ready-queue and preemption state
// machine. One Scheduler instance corresponds to one CPU; kpio's
// first boot target is single-CPU per spec §4.5's "Model" paragraph.
type Scheduler struct {
	mu sync.Mutex

	table *proc.Table

	ready    [NumPriorities][]proc.Id
	priority map[proc.Id]int
	blocked  map[proc.Id]BlockReason

	current        proc.Id
	hasCurrent     bool
	slice          int
	needResched    bool
	preemptDepth   int32
	pendingPreempt bool

	timer timerWheel
}

// New creates a scheduler bound to the given task table.
func New(table *proc.Table) *Scheduler {
	return &Scheduler{
		table:    table,
		priority: make(map[proc.Id]int),
		blocked:  make(map[proc.Id]BlockReason),
	}
}

// Enqueue places a Runnable task at the tail of its priority level's
// ready queue (spec §4.5: "within one priority level the queue is
// strictly FIFO").
func (s *Scheduler) Enqueue(id proc.Id, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(id, priority)
}

func (s *Scheduler) enqueueLocked(id proc.Id, priority int) {
	if priority < 0 || priority >= NumPriorities {
		panic("sched: priority out of range")
	}
	s.priority[id] = priority
	s.ready[priority] = append(s.ready[priority], id)
}

// popHighest removes and returns the head of the highest (lowest
// numbered) non-empty ready queue.
func (s *Scheduler) popHighest() (proc.Id, int, bool) {
	for p := 0; p < NumPriorities; p++ {
		q := s.ready[p]
		if len(q) == 0 {
			continue
		}
		id := q[0]
		s.ready[p] = q[1:]
		return id, p, true
	}
	return 0, 0, false
}

// Block removes id from scheduling consideration, tagged with why
// (spec §4.5 "Cancellation": "a task blocks on exactly one wait
// queue"). Blocking is itself one of spec §5's voluntary switch
// points, so Block sets needResched; the caller still has to call
// Schedule to actually switch away (Block alone does not touch the
// stack).
func (s *Scheduler) Block(id proc.Id, reason BlockReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[id] = reason
	s.needResched = true
}

// Wake moves a blocked task back onto the ready queue in FIFO order
// and, if it outranks the currently running task, requests an
// immediate preemption (spec §4.5 "Ordering guarantees").
func (s *Scheduler) Wake(id proc.Id) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, id)
	prio, ok := s.priority[id]
	if !ok {
		return
	}
	s.enqueueLocked(id, prio)
	if s.hasCurrent {
		if curPrio, ok := s.priority[s.current]; ok && prio < curPrio {
			s.needResched = true
		}
	} else {
		s.needResched = true
	}
}

// PreemptDisable/PreemptEnable form the nesting counter spec §4.5
// names; while depth is nonzero, Schedule records the request but
// does not switch.
func (s *Scheduler) PreemptDisable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preemptDepth++
}

// PreemptEnable decrements the nesting counter; reaching zero drains
// any pending-preempt request by running Schedule.
func (s *Scheduler) PreemptEnable() {
	s.mu.Lock()
	s.preemptDepth--
	drain := s.preemptDepth == 0 && s.pendingPreempt
	if drain {
		s.pendingPreempt = false
	}
	s.mu.Unlock()
	if drain {
		s.Schedule()
	}
}

// NeedResched reports whether the next opportunity should switch.
func (s *Scheduler) NeedResched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needResched
}

// TimerTick implements spec §4.5's timer_tick(): decrements the
// running task's slice, wakes due timer-wheel entries, and sets
// need_reschedule if the slice is exhausted.
func (s *Scheduler) TimerTick(now uint64) {
	var woken []proc.Id
	s.mu.Lock()
	if s.hasCurrent {
		s.slice--
		if s.slice <= 0 {
			s.needResched = true
		}
	}
	woken = s.timer.expire(now)
	s.mu.Unlock()

	for _, id := range woken {
		s.Wake(id)
	}
}

// SleepUntil registers id on the timer wheel, to be woken at or after
// deadline (spec §4.5's "timer-wheel entries whose deadline has
// passed").
func (s *Scheduler) SleepUntil(id proc.Id, deadline uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.add(id, deadline)
}

// CancelTimer removes id from the timer wheel without waking it
// (spec §4.5 "Cancellation": killed tasks are pulled from the timer
// wheel at kill time).
func (s *Scheduler) CancelTimer(id proc.Id) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.remove(id)
}

// Current reports the currently running task, if any.
func (s *Scheduler) Current() (proc.Id, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasCurrent
}
