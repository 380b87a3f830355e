package sched

import "kpio/internal/proc"

// contextSwitch saves the outgoing task's callee-saved registers into
// old and loads next's, returning into whatever next's saved RSP
// points at — a naked function ending in `ret`, spec §4.5's "Context
// switch" paragraph. Implemented in contextswitch_amd64.s. old may be
// nil only via loadContext below.
//
//go:noescape
func contextSwitch(old, next *proc.SavedContext)

// loadContext restores next's registers and jumps into it without
// saving anything first, used the one time there is no outgoing task
// to preserve (booting the very first task on a CPU).
//
//go:noescape
func loadContext(next *proc.SavedContext)

// Schedule runs the scheduling decision spec §4.5 describes: if
// preempt-disable depth is nonzero, the request is deferred; if no
// reschedule is pending, Schedule is a no-op; otherwise the
// highest-priority ready task is switched to. The scheduler-table
// lock is released before the switch instruction (spec §4.5: "to
// prevent a deadlock if the resumed task also calls schedule()").
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	if s.preemptDepth > 0 {
		s.pendingPreempt = true
		s.mu.Unlock()
		return
	}
	if !s.needResched {
		s.mu.Unlock()
		return
	}
	s.needResched = false

	nextID, _, ok := s.popHighest()
	if !ok {
		s.mu.Unlock()
		return
	}

	prevID, hadPrev := s.current, s.hasCurrent
	if hadPrev {
		if _, blocked := s.blocked[prevID]; !blocked {
			if t, ok := s.table.Get(prevID); ok && t.State == proc.Runnable {
				s.enqueueLocked(prevID, s.priority[prevID])
			}
		}
	}
	s.current, s.hasCurrent = nextID, true
	s.slice = TimeSlice
	s.mu.Unlock()

	nextTask, ok := s.table.Get(nextID)
	if !ok {
		panic("sched: ready task missing from task table")
	}
	if !hadPrev {
		loadContext(&nextTask.Context)
		return
	}
	prevTask, ok := s.table.Get(prevID)
	if !ok {
		panic("sched: outgoing task missing from task table")
	}
	contextSwitch(&prevTask.Context, &nextTask.Context)
}
