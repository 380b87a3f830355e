package proc

import (
	"kpio/internal/defs"
	"kpio/internal/mem/vmm"
)

// Loader is satisfied by internal/elf: Exec hands it a fresh address
// space and the raw ELF64 image and gets back the entry point to
// resume at. Kept as an interface so proc does not import elf
// directly, keeping the dependency one-directional (elf -> proc would
// be the wrong way around, since elf only needs an address space).
type Loader interface {
	Load(as *vmm.AddressSpace, image []byte) (entry defs.Va_t, err defs.Err_t)
}

// Fork deep-copies parent's address space (via C2's clone_user_half)
// and fd table, inheriting signal state, per spec §4.4 "Fork". The
// RAX-zeroing half of "returns 0 to the child" is the scheduler's
// responsibility once it materializes the child's first trap frame;
// Fork itself just returns the new Task so the caller (the fork
// syscall handler) can populate that frame.
func (tb *Table) Fork(parent *Task) (*Task, defs.Err_t) {
	parent.mu.Lock()
	childAS, err := parent.AS.CloneUserHalf()
	if err != defs.OK {
		parent.mu.Unlock()
		return nil, err
	}
	childFds := parent.Fds.cloneForFork()
	childCaps := parent.Caps.Clone()
	sighand := parent.Sighand
	sigmask := parent.SigMask
	brk := parent.Brk
	priority := parent.Priority
	parent.mu.Unlock()

	tb.mu.Lock()
	child := &Task{
		Id:       tb.allocId(),
		Parent:   parent.Id,
		State:    Runnable,
		Priority: priority,
		AS:       childAS,
		Fds:      childFds,
		Caps:     childCaps,
		Sighand:  sighand,
		SigMask:  sigmask,
		Brk:      brk,
		limits:   parent.limits,
		waiters:  make(chan struct{}),
	}
	tb.tasks[child.Id] = child
	tb.mu.Unlock()

	return child, defs.OK
}

// Exec replaces t's address space contents with the given ELF64
// image: destroy_user_mappings, load PT_LOAD segments, and return the
// entry point for the router to sysret into (spec §4.4 "Exec"). Open
// fds marked close-on-exec are dropped first.
func (t *Task) Exec(ld Loader, image []byte) (defs.Va_t, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Fds.closeOnExec()
	t.AS.DestroyUserMappings()
	entry, err := ld.Load(t.AS, image)
	if err != defs.OK {
		return 0, err
	}
	t.Brk = 0
	return entry, defs.OK
}

// Exit moves t to Zombie, records the exit code, and wakes whatever
// waits on the parent's Wait4 (spec §4.4 "Exit"). Only the parent
// itself ever calls Wait4 on its own children (spec §4.5's "a task
// blocks on exactly one wait queue"), so waking the parent's id
// directly is exact under a wired Blocker; the Cond fallback broadcasts
// since it has no single id to target.
func (tb *Table) Exit(t *Task, code int) {
	tb.mu.Lock()
	t.mu.Lock()
	t.State = Zombie
	t.ExitCode = code
	t.mu.Unlock()
	close(t.waiters)
	if tb.blocker != nil {
		tb.blocker.Wake(t.Parent)
	} else if c, ok := tb.waitConds[t.Parent]; ok {
		c.Broadcast()
	}
	tb.mu.Unlock()
}

// Wait4 implements spec §4.4 "Wait4": with nohang set, returns
// immediately (0, 0, OK) if no child is Zombie; otherwise it sleeps
// on the parent's wait queue until a child exits, reaps the zombie,
// and returns its id and exit code. pid == 0 means "any child". A
// wired Blocker (spec §4.5's block/wake primitive) suspends the
// parent task itself rather than parking a goroutine on a sync.Cond;
// see proc.Blocker's doc for why that fallback exists at all.
func (tb *Table) Wait4(parent *Task, pid Id, nohang bool) (Id, int, defs.Err_t) {
	tb.mu.Lock()
	for {
		zombie, anyChild := tb.findChild(parent.Id, pid)
		if zombie != nil {
			delete(tb.tasks, zombie.Id)
			tb.mu.Unlock()
			return zombie.Id, zombie.ExitCode, defs.OK
		}
		if !anyChild {
			tb.mu.Unlock()
			return 0, 0, defs.ENotFound
		}
		if nohang {
			tb.mu.Unlock()
			return 0, 0, defs.OK
		}
		if tb.blocker == nil {
			tb.condFor(parent.Id).Wait()
			continue
		}
		blocker := tb.blocker
		tb.mu.Unlock()
		blocker.Block(parent.Id, BlockWait4)
		blocker.Schedule()
		tb.mu.Lock()
	}
}

// findChild reports a zombie child matching pid (if any) and whether
// any matching child exists at all (zombie or not).
func (tb *Table) findChild(parent Id, pid Id) (*Task, bool) {
	var any bool
	for _, c := range tb.tasks {
		if c.Parent != parent {
			continue
		}
		if pid != 0 && c.Id != pid {
			continue
		}
		any = true
		c.mu.Lock()
		isZombie := c.State == Zombie
		c.mu.Unlock()
		if isZombie {
			return c, true
		}
	}
	return nil, any
}
