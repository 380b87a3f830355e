package syscall

import (
	"encoding/binary"
	"sync"

	"kpio/internal/defs"
	"kpio/internal/proc"
)

// memFile is the Resource behind open(2)/openat(2): the whole file is
// read up front via the router's ImageSource (the same "no VFS, treat
// the resolved bytes as the entire file" model execve already uses)
// and served out of memory, tracking its own read offset for
// lseek(2)/read(2) (spec §4.9's dispatch table lists open/stat/fstat/
// lseek among the ≈47 numbers a complete router covers).
type memFile struct {
	mu     sync.Mutex
	data   []byte
	offset int64
}

func (f *memFile) Close() defs.Err_t { return defs.OK }

func (f *memFile) Read(p []byte) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offset >= int64(len(f.data)) {
		return 0, defs.OK
	}
	n := copy(p, f.data[f.offset:])
	f.offset += int64(n)
	return n, defs.OK
}

// Seek implements the seeker interface lseek(2) dispatches through.
func (f *memFile) Seek(off int64, whence int) (int64, defs.Err_t) {
	const (
		seekSet = 0
		seekCur = 1
		seekEnd = 2
	)
	f.mu.Lock()
	defer f.mu.Unlock()
	var base int64
	switch whence {
	case seekSet:
		base = 0
	case seekCur:
		base = f.offset
	case seekEnd:
		base = int64(len(f.data))
	default:
		return 0, defs.EInvalidArgument
	}
	next := base + off
	if next < 0 {
		return 0, defs.EInvalidArgument
	}
	f.offset = next
	return next, defs.OK
}

func (f *memFile) size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data))
}

// seeker is satisfied by memFile; kept distinct from proc.Reader so
// fds that can't seek (pipes, console devices) don't need a no-op
// implementation.
type seeker interface {
	Seek(off int64, whence int) (int64, defs.Err_t)
}

func sysOpenFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	path, err := copyInCString(t, defs.Va_t(a[0]))
	if err != defs.OK {
		return 0, err
	}
	return openPath(r, t, path)
}

func openPath(r *Router, t *proc.Task, path string) (int64, defs.Err_t) {
	if r.images == nil {
		return 0, defs.ENotFound
	}
	data, err := r.images.ReadFile(path)
	if err != defs.OK {
		return 0, err
	}
	fd := t.InstallFd(&memFile{data: data}, 0o4, false)
	return int64(fd), defs.OK
}

// statBuf is a Linux x86_64 struct stat, zero-filled except for the
// two fields musl's static binaries actually read back: st_mode
// (regular file, read-only) and st_size.
const (
	statSize    = 144
	statModeOff = 24
	statSizeOff = 48
)

func writeStatBuf(t *proc.Task, uptr uintptr, size int64) defs.Err_t {
	if err := checkUserPtr(uptr); err != defs.OK {
		return err
	}
	const modeRegularReadOnly = 0o100000 | 0o444
	buf := make([]byte, statSize)
	binary.LittleEndian.PutUint32(buf[statModeOff:], uint32(modeRegularReadOnly))
	binary.LittleEndian.PutUint64(buf[statSizeOff:], uint64(size))
	return t.AS.CopyOut(defs.Va_t(uptr), buf)
}

func sysStatFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	path, err := copyInCString(t, defs.Va_t(a[0]))
	if err != defs.OK {
		return 0, err
	}
	if r.images == nil {
		return 0, defs.ENotFound
	}
	data, err := r.images.ReadFile(path)
	if err != defs.OK {
		return 0, err
	}
	return 0, writeStatBuf(t, a[1], int64(len(data)))
}

func sysFstatFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	res, _, ok := t.Resource(int(a[0]))
	if !ok {
		return 0, defs.ENotFound
	}
	mf, ok := res.(*memFile)
	if !ok {
		return 0, writeStatBuf(t, a[1], 0)
	}
	return 0, writeStatBuf(t, a[1], mf.size())
}

func sysLseekFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	res, _, ok := t.Resource(int(a[0]))
	if !ok {
		return 0, defs.ENotFound
	}
	sk, ok := res.(seeker)
	if !ok {
		return 0, defs.EInvalidArgument
	}
	off, err := sk.Seek(int64(a[1]), int(a[2]))
	return off, err
}
