// Package ipc is the IPC fabric (spec §4.7, C7): fixed-capacity
// message channels and refcounted shared-memory regions. The channel
// ring buffer is backed by cloudwego-gopkg's container/ring.Ring, the
// same fixed-allocation "one malloc, index by position" container the
// pack's RPC runtime uses for its connection pools; the wake-oldest-
// first queue discipline is original construction against spec §4.7
// (the teacher's actual cons_t/pollers_t wakeup code was filtered out
// of the retrieval pack, so this follows the contract text directly).
package ipc

import (
	"sync"

	"github.com/cloudwego/gopkg/container/ring"
	"kpio/internal/defs"
	"kpio/internal/proc"
)

const maxInlinePayload = 4096

// Message is one IPC send's payload: an inline byte blob plus
// optional transferred capabilities and a shared-memory handle (spec
// §4.7 "Messages").
type Message struct {
	Payload []byte
	Caps    []uint64
	Shm     *ShmHandle
}

// CapValidator is satisfied by the capability system (C8): Send uses
// it to check every transferred capability belongs to the sender
// before any bytes move, keeping ipc decoupled from cap's concrete
// types.
type CapValidator interface {
	Check(id uint64) bool
}

// waitEntry is one task parked on a channel's sender or receiver
// queue. done is non-nil only in the no-Blocker fallback (see
// Channel.SetScheduler): a real kernel task has no goroutine of its
// own to park, so wake there always goes through the wired Blocker's
// Wake(id) instead of closing a channel.
type waitEntry struct {
	id   proc.Id
	done chan struct{}
}

// Channel is a fixed-capacity FIFO message queue (spec §4.7
// `channel_create`/`send`/`recv`/`close`).
type Channel struct {
	mu   sync.Mutex
	buf  *ring.Ring[Message]
	head int
	size int
	cap  int
	open bool

	blocker proc.Blocker

	senders   []waitEntry
	receivers []waitEntry
}

// NewChannel allocates a channel with capacity slots.
func NewChannel(capacity int) *Channel {
	return &Channel{
		buf:  ring.NewFromSlice(make([]Message, capacity)),
		cap:  capacity,
		open: true,
	}
}

// SetScheduler wires this channel's blocking to a real task scheduler
// (spec §4.5, §4.7): once set, Send/Recv suspend a full/empty channel
// by calling Block/Schedule on b and wake the oldest waiter with
// Wake, instead of parking on a Go channel only another goroutine
// could close. Left nil, Channel falls back to that goroutine-based
// parking — the only mode safe to exercise under `go test`, since b
// is expected to be *sched.Scheduler and Schedule drops into the
// hand-written context-switch assembly sched_test.go's own tests
// refuse to call for the same reason (see proc.Blocker's doc).
func (c *Channel) SetScheduler(b proc.Blocker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocker = b
}

// wakeOneLocked wakes the oldest entry in q, if any. Must be called
// with c.mu held.
func (c *Channel) wakeOneLocked(q *[]waitEntry) {
	if len(*q) == 0 {
		return
	}
	w := (*q)[0]
	*q = (*q)[1:]
	if w.done != nil {
		close(w.done)
		return
	}
	c.blocker.Wake(w.id)
}

// Send enqueues msg, copying its inline payload and validating every
// transferred capability. Blocks while the channel is full; wakes the
// oldest waiting receiver, if any, on success. self identifies the
// calling task so a wired Blocker knows who to suspend and later wake;
// it is ignored in the no-Blocker fallback.
func (c *Channel) Send(self proc.Id, msg Message, validate CapValidator) defs.Err_t {
	if len(msg.Payload) > maxInlinePayload {
		return defs.EInvalidArgument
	}
	for _, capID := range msg.Caps {
		if validate != nil && !validate.Check(capID) {
			return defs.EInvalidCapability
		}
	}
	payload := append([]byte(nil), msg.Payload...)
	if msg.Shm != nil {
		msg.Shm.region.addRef()
	}
	msg.Payload = payload

	for {
		c.mu.Lock()
		if !c.open {
			c.mu.Unlock()
			return defs.EChannelClosed
		}
		if c.size < c.cap {
			item, _ := c.buf.Get((c.head + c.size) % c.cap)
			*item.Pointer() = msg
			c.size++
			c.wakeOneLocked(&c.receivers)
			c.mu.Unlock()
			return defs.OK
		}
		blocker := c.blocker
		if blocker == nil {
			w := waitEntry{id: self, done: make(chan struct{})}
			c.senders = append(c.senders, w)
			c.mu.Unlock()
			<-w.done
			continue
		}
		c.senders = append(c.senders, waitEntry{id: self})
		c.mu.Unlock()
		blocker.Block(self, proc.BlockChannel)
		blocker.Schedule()
	}
}

// Recv dequeues the oldest message, blocking while the channel is
// empty. Returns EChannelClosed once a closed channel has fully
// drained (spec §4.7: "subsequent recvs drain then fail"). self is
// Send's argument of the same name.
func (c *Channel) Recv(self proc.Id) (Message, defs.Err_t) {
	for {
		c.mu.Lock()
		if c.size > 0 {
			item, _ := c.buf.Get(c.head)
			msg := item.Value()
			c.head = (c.head + 1) % c.cap
			c.size--
			c.wakeOneLocked(&c.senders)
			c.mu.Unlock()
			return msg, defs.OK
		}
		if !c.open {
			c.mu.Unlock()
			return Message{}, defs.EChannelClosed
		}
		blocker := c.blocker
		if blocker == nil {
			w := waitEntry{id: self, done: make(chan struct{})}
			c.receivers = append(c.receivers, w)
			c.mu.Unlock()
			<-w.done
			continue
		}
		c.receivers = append(c.receivers, waitEntry{id: self})
		c.mu.Unlock()
		blocker.Block(self, proc.BlockChannel)
		blocker.Schedule()
	}
}

// Close marks the channel closed and wakes every waiter (spec §4.7:
// "wakes all waiters with a closed-error").
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.open = false
	for _, w := range c.senders {
		if w.done != nil {
			close(w.done)
		} else {
			c.blocker.Wake(w.id)
		}
	}
	for _, w := range c.receivers {
		if w.done != nil {
			close(w.done)
		} else {
			c.blocker.Wake(w.id)
		}
	}
	c.senders = nil
	c.receivers = nil
}

// Len reports the number of queued, undelivered messages.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
