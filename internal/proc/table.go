package proc

import (
	"sync"

	"kpio/internal/cap"
	"kpio/internal/defs"
	"kpio/internal/mem/pmm"
	"kpio/internal/mem/vmm"
)

// Table is the process/task table (spec §4.4): every live task
// indexed by its monotonically assigned, never-reused Id, plus the
// wait-queue bookkeeping Wait4 needs.
type Table struct {
	mu        sync.Mutex
	tasks     map[Id]*Task
	next      Id
	waitConds map[Id]*sync.Cond
	blocker   Blocker

	frames *pmm.Allocator
	phys   *vmm.PhysMem
}

// SetBlocker wires Wait4 to a real task scheduler (spec §4.4 "Wait4",
// §4.5): once set, a parent with no zombie child suspends by calling
// Block/Schedule on b and is woken directly by Exit, instead of
// parking on a sync.Cond. Left nil, Table falls back to that Cond —
// the only mode safe under `go test` (see proc.Blocker's doc).
func (tb *Table) SetBlocker(b Blocker) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.blocker = b
}

// NewTable creates an empty table backed by the given physical
// allocator and physical-memory window (shared with C1/C2).
func NewTable(frames *pmm.Allocator, phys *vmm.PhysMem) *Table {
	return &Table{
		tasks:     make(map[Id]*Task),
		next:      1,
		waitConds: make(map[Id]*sync.Cond),
		frames:    frames,
		phys:      phys,
	}
}

func (tb *Table) allocId() Id {
	id := tb.next
	tb.next++
	return id
}

// New creates a fresh task with a new address space and empty fd
// table, priority as given (spec §4.5's "priority is set at task
// creation"), and inserts it into the table.
func (tb *Table) New(parent Id, priority int) (*Task, defs.Err_t) {
	as, err := vmm.New(tb.frames, tb.phys)
	if err != defs.OK {
		return nil, err
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	t := &Task{
		Id:       tb.allocId(),
		Parent:   parent,
		State:    Runnable,
		Priority: priority,
		AS:       as,
		Fds:      newFdTable(),
		Caps:     cap.NewSet(),
		limits:   defaultLimits,
		waiters:  make(chan struct{}),
	}
	tb.tasks[t.Id] = t
	return t, defs.OK
}

// Get looks up a task by id.
func (tb *Table) Get(id Id) (*Task, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.tasks[id]
	return t, ok
}

// InstallFd wires a Resource into the task's fd table at the next
// free slot past the reserved stdio range, returning the assigned fd
// number.
func (t *Task) InstallFd(res Resource, perms uint, closeOnExec bool) int {
	fd := newFd(res, perms)
	fd.CloseOnExec = closeOnExec
	return t.Fds.install(fd)
}

// SetStdio wires a Resource directly into slot 0, 1, or 2 — used by
// boot code to seed stdin/stdout/stderr, the way the teacher's
// proc_new wires fd_stdin/fd_stdout/fd_stderr.
func (t *Task) SetStdio(n int, res Resource, perms uint) {
	fd := newFd(res, perms)
	t.Fds.setStdio(n, fd)
}

func (tb *Table) condFor(parent Id) *sync.Cond {
	c, ok := tb.waitConds[parent]
	if !ok {
		c = sync.NewCond(&tb.mu)
		tb.waitConds[parent] = c
	}
	return c
}
