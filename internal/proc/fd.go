package proc

import (
	"sync"
	"sync/atomic"

	"kpio/internal/defs"
)

// Resource is whatever a file descriptor ultimately refers to — a
// console device, a pipe end, a future filesystem inode. proc only
// needs to know how to drop the last reference; backing-specific
// operations (read/write/ioctl) live behind this interface so proc
// never imports a concrete device package.
type Resource interface {
	Close() defs.Err_t
}

// Reader and Writer are implemented by Resources that back read(2)/
// write(2) (e.g. internal/console's device, a future pipe end). Kept
// separate from Resource itself since not every resource (a bare IPC
// channel handle, say) supports byte-stream I/O.
type Reader interface {
	Read(p []byte) (int, defs.Err_t)
}

type Writer interface {
	Write(p []byte) (int, defs.Err_t)
}

// Fd is one process's handle on a Resource. Multiple Fds (from dup,
// dup2, or fork) can share one Resource via refcount, the way the
// teacher's copyfd bumps the underlying fops' open count rather than
// copying it.
type Fd struct {
	res         Resource
	refs        *int32
	Perms       uint
	CloseOnExec bool
}

func newFd(res Resource, perms uint) *Fd {
	r := int32(1)
	return &Fd{res: res, refs: &r, Perms: perms}
}

// dup returns a new Fd sharing the same underlying resource.
func (f *Fd) dup() *Fd {
	atomic.AddInt32(f.refs, 1)
	return &Fd{res: f.res, refs: f.refs, Perms: f.Perms}
}

// release drops one reference, closing the resource when it reaches
// zero. Returns the Close error, if any, only on the final release.
func (f *Fd) release() defs.Err_t {
	if atomic.AddInt32(f.refs, -1) == 0 {
		return f.res.Close()
	}
	return defs.OK
}

// fdTable is one process's open-file table, indexed by small integer
// fd number starting at 3 (0/1/2 are stdin/stdout/stderr, matching
// the teacher's fdstart = 3).
// fdStart is the first fd number install() hands out, reserving
// 0/1/2 for stdin/stdout/stderr the way the teacher's fdstart = 3
// does; those three are only ever populated explicitly via setStdio.
const fdStart = 3

type fdTable struct {
	mu    sync.Mutex
	slots []*Fd
}

func newFdTable() *fdTable {
	return &fdTable{slots: make([]*Fd, fdStart, 16)}
}

// install finds or grows to the first free slot at or past fdStart
// and stores fd there, returning its number.
func (t *fdTable) install(fd *Fd) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := fdStart; i < len(t.slots); i++ {
		if t.slots[i] == nil {
			t.slots[i] = fd
			return i
		}
	}
	t.slots = append(t.slots, fd)
	return len(t.slots) - 1
}

// setStdio installs fd directly at slot n (0, 1, or 2), closing
// whatever was already there.
func (t *fdTable) setStdio(n int, fd *Fd) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old := t.slots[n]; old != nil {
		old.release()
	}
	t.slots[n] = fd
}

func (t *fdTable) get(n int) (*Fd, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 || n >= len(t.slots) || t.slots[n] == nil {
		return nil, false
	}
	return t.slots[n], true
}

// dup2 installs src at slot n, closing whatever was there (matching
// Linux dup2 semantics).
func (t *fdTable) dup2(n int, src *Fd) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	for n >= len(t.slots) {
		t.slots = append(t.slots, nil)
	}
	if old := t.slots[n]; old != nil {
		old.release()
	}
	t.slots[n] = src.dup()
	return defs.OK
}

// closeSlot removes slot n, releasing the shared resource if this was
// the last reference.
func (t *fdTable) closeSlot(n int) defs.Err_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 || n >= len(t.slots) || t.slots[n] == nil {
		return defs.ENotFound
	}
	fd := t.slots[n]
	t.slots[n] = nil
	return fd.release()
}

// cloneForFork duplicates every open slot with a bumped refcount,
// matching proc_new's copyfd-per-entry behavior.
func (t *fdTable) cloneForFork() *fdTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := &fdTable{slots: make([]*Fd, len(t.slots))}
	for i, s := range t.slots {
		if s != nil {
			out.slots[i] = s.dup()
		}
	}
	return out
}

// closeOnExec drops every CloseOnExec slot, called by Exec.
func (t *fdTable) closeOnExec() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s != nil && s.CloseOnExec {
			s.release()
			t.slots[i] = nil
		}
	}
}

// Resource returns the fd's underlying Resource and permission bits,
// for the syscall router's read/write/ioctl handlers.
func (t *Task) Resource(n int) (Resource, uint, bool) {
	fd, ok := t.Fds.get(n)
	if !ok {
		return nil, 0, false
	}
	return fd.res, fd.Perms, true
}

// CloseFd implements close(2) on fd n.
func (t *Task) CloseFd(n int) defs.Err_t {
	return t.Fds.closeSlot(n)
}

// DupFd implements dup(2): installs a new handle sharing n's resource
// at the lowest free slot at or above fdStart (3), returning the new
// fd number; a vacated 0/1/2 slot is not reused.
func (t *Task) DupFd(n int) (int, defs.Err_t) {
	fd, ok := t.Fds.get(n)
	if !ok {
		return 0, defs.ENotFound
	}
	return t.Fds.install(fd.dup()), defs.OK
}

// Dup2Fd implements dup2(2): installs oldfd's resource at newfd,
// closing whatever was already there.
func (t *Task) Dup2Fd(oldfd, newfd int) defs.Err_t {
	fd, ok := t.Fds.get(oldfd)
	if !ok {
		return defs.ENotFound
	}
	return t.Fds.dup2(newfd, fd)
}
