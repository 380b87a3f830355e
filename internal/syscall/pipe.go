package syscall

import (
	"sync"

	"kpio/internal/defs"
	"kpio/internal/proc"
)

// pipeBuf is a minimal unidirectional byte pipe backing pipe(2)/
// pipe2(2) (spec §4.9's dispatch list names both). The teacher's own
// pipe_t was filtered out of the retrieved pack (main.go only shows
// its unsafe.Sizeof use in a diagnostic dump), so this is a fresh,
// small reconstruction: a mutex-guarded byte slice with blocking
// reads, not a byte-for-byte port.
type pipeBuf struct {
	mu     sync.Mutex
	notify chan struct{}
	data   []byte
	closed bool
}

func newPipeBuf() *pipeBuf {
	return &pipeBuf{notify: make(chan struct{}, 1)}
}

func (p *pipeBuf) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

type pipeReadEnd struct{ p *pipeBuf }
type pipeWriteEnd struct{ p *pipeBuf }

func (r *pipeReadEnd) Read(buf []byte) (int, defs.Err_t) {
	for {
		r.p.mu.Lock()
		if len(r.p.data) > 0 {
			n := copy(buf, r.p.data)
			r.p.data = r.p.data[n:]
			r.p.mu.Unlock()
			return n, defs.OK
		}
		if r.p.closed {
			r.p.mu.Unlock()
			return 0, defs.OK
		}
		r.p.mu.Unlock()
		<-r.p.notify
	}
}

func (r *pipeReadEnd) Close() defs.Err_t {
	r.p.mu.Lock()
	r.p.closed = true
	r.p.mu.Unlock()
	r.p.wake()
	return defs.OK
}

func (w *pipeWriteEnd) Write(buf []byte) (int, defs.Err_t) {
	w.p.mu.Lock()
	if w.p.closed {
		w.p.mu.Unlock()
		return 0, defs.EChannelClosed
	}
	w.p.data = append(w.p.data, buf...)
	w.p.mu.Unlock()
	w.p.wake()
	return len(buf), defs.OK
}

func (w *pipeWriteEnd) Close() defs.Err_t {
	w.p.mu.Lock()
	w.p.closed = true
	w.p.mu.Unlock()
	w.p.wake()
	return defs.OK
}

func sysPipeFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	if err := checkUserPtr(a[0]); err != defs.OK {
		return 0, err
	}
	buf := newPipeBuf()
	readFd := t.InstallFd(&pipeReadEnd{buf}, 0, false)
	writeFd := t.InstallFd(&pipeWriteEnd{buf}, 0, false)

	out := make([]byte, 8)
	out[0], out[1] = byte(readFd), byte(readFd>>8)
	out[4], out[5] = byte(writeFd), byte(writeFd>>8)
	return 0, t.AS.CopyOut(defs.Va_t(a[0]), out)
}
