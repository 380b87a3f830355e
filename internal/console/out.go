package console

import (
	"io"
	"sync"

	"kpio/internal/defs"
)

// Out is the write side of the console device: stdout/stderr for any
// Task, backed by an injectable io.Writer. The teacher never routes
// process writes through cons_t (kernel-side fmt.Printf goes straight
// to its forked runtime's VGA/serial driver); this package supplies
// the missing half so write(2) on fd 1/2 has somewhere to go, wrapping
// whatever sink a real boot path wires in (serial port, framebuffer
// text console) behind the same seam perf.MSR/perf.CPUIDFunc use for
// hardware this package can't assume is real.
type Out struct {
	mu  sync.Mutex
	dst io.Writer
}

func NewOut(dst io.Writer) *Out { return &Out{dst: dst} }

func (o *Out) Write(p []byte) (int, defs.Err_t) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, err := o.dst.Write(p)
	if err != nil {
		return n, defs.EInvalidArgument
	}
	return n, defs.OK
}

func (o *Out) Close() defs.Err_t { return defs.OK }
