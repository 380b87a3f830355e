// Package console is the keyboard/serial input path supplementing the
// four core components: something has to back read(2) on fd 0 for an
// interactive bin/init (SPEC_FULL.md §12.5), adapted from teacher's
// kbd_init/kbd_daemon/cons_t, reduced to what the fd-table path needs.
package console

import (
	"sync"

	"github.com/cloudwego/gopkg/container/ring"
	"kpio/internal/defs"
)

const bufCap = 1024

// Console is a single-reader byte queue fed by keyboard scancodes and
// serial bytes, backing stdin for any Task whose fd 0 is wired to it
// (proc.Task.SetStdio). Output (fd 1/2) is a separate concern handled
// by Out, since a Console instance's input queue and output sink have
// independent lifetimes (dup'd stdin shouldn't close stdout).
type Console struct {
	mu   sync.Mutex
	buf  *ring.Ring[byte]
	head int
	size int
	cap  int

	closed bool
}

// New allocates a Console with room for bufCap queued bytes, matching
// teacher's 1024-byte addprint drop threshold ("key dropped!").
func New() *Console {
	return &Console{
		buf: ring.NewFromSlice(make([]byte, bufCap)),
		cap: bufCap,
	}
}

func (c *Console) push(b byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.size >= c.cap {
		return // key dropped, same as teacher's addprint overflow check
	}
	item, _ := c.buf.Get((c.head + c.size) % c.cap)
	*item.Pointer() = b
	c.size++
}

// KeyboardIRQ translates one scancode through the xv6-derived table
// and queues the resulting byte, if any (teacher's kbd_daemon reading
// inb(0x60) in a loop while _kready()).
func (c *Console) KeyboardIRQ(scancode int) {
	if b, ok := scanTable[scancode]; ok {
		c.push(b)
	}
}

// SerialIRQ queues one COM1 byte, applying the same CR->LF and
// DEL->backspace translation teacher's kbd_daemon applies to serial
// input.
func (c *Console) SerialIRQ(b byte) {
	switch b {
	case '\r':
		b = '\n'
	case 127:
		b = '\b'
	}
	c.push(b)
}

// Ready reports whether Read would return data without blocking
// (the poll-style readiness check SPEC_FULL.md §12.5 calls for, used
// by the ioctl(TIOCGWINSZ)-adjacent read/write handlers' poll path).
func (c *Console) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size > 0
}

// Read drains up to len(p) queued bytes. Never blocks: an empty queue
// reports EChannelEmpty (mapped to EAGAIN at the syscall boundary) so
// the router's poll loop, not this type, owns waiting.
func (c *Console) Read(p []byte) (int, defs.Err_t) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.size == 0 {
		if c.closed {
			return 0, defs.OK
		}
		return 0, defs.EChannelEmpty
	}
	n := len(p)
	if n > c.size {
		n = c.size
	}
	for i := 0; i < n; i++ {
		item, _ := c.buf.Get(c.head)
		p[i] = item.Value()
		c.head = (c.head + 1) % c.cap
	}
	c.size -= n
	return n, defs.OK
}

func (c *Console) Close() defs.Err_t {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return defs.OK
}
