package sched

import "kpio/internal/proc"

// timerWheel is a flat sorted-on-expire slice; spec §4.5 only
// requires "wakes any timer-wheel entries whose deadline has passed"
// each tick, not a specific bucketing strategy, so a linear scan over
// a small pending set (sleepers are rare relative to ready tasks) is
// simplest and matches the teacher's general preference for simple
// data structures over premature optimization elsewhere in main.go.
type timerWheel struct {
	entries []timerEntry
}

type timerEntry struct {
	id       proc.Id
	deadline uint64
}

func (w *timerWheel) add(id proc.Id, deadline uint64) {
	w.entries = append(w.entries, timerEntry{id: id, deadline: deadline})
}

func (w *timerWheel) remove(id proc.Id) {
	for i, e := range w.entries {
		if e.id == id {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			return
		}
	}
}

// expire removes and returns every entry whose deadline has passed.
func (w *timerWheel) expire(now uint64) []proc.Id {
	var woken []proc.Id
	kept := w.entries[:0]
	for _, e := range w.entries {
		if e.deadline <= now {
			woken = append(woken, e.id)
		} else {
			kept = append(kept, e)
		}
	}
	w.entries = kept
	return woken
}
