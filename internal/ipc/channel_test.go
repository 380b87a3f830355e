package ipc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"kpio/internal/defs"
	"kpio/internal/proc"
)

type allowAll struct{}

func (allowAll) Check(uint64) bool { return true }

type denyAll struct{}

func (denyAll) Check(uint64) bool { return false }

func TestSendRecvRoundTrip(t *testing.T) {
	c := NewChannel(2)
	require.Equal(t, defs.OK, c.Send(1, Message{Payload: []byte("hi")}, nil))
	require.Equal(t, 1, c.Len())

	msg, err := c.Recv(1)
	require.Equal(t, defs.OK, err)
	require.Equal(t, []byte("hi"), msg.Payload)
	require.Zero(t, c.Len())
}

func TestSendCopiesPayload(t *testing.T) {
	c := NewChannel(1)
	buf := []byte("original")
	require.Equal(t, defs.OK, c.Send(1, Message{Payload: buf}, nil))
	buf[0] = 'X'

	msg, _ := c.Recv(1)
	require.Equal(t, []byte("original"), msg.Payload, "send must defensively copy the payload")
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	c := NewChannel(1)
	big := make([]byte, maxInlinePayload+1)
	require.Equal(t, defs.EInvalidArgument, c.Send(1, Message{Payload: big}, nil))
}

func TestSendValidatesCapabilities(t *testing.T) {
	c := NewChannel(1)
	err := c.Send(1, Message{Caps: []uint64{1, 2}}, denyAll{})
	require.Equal(t, defs.EInvalidCapability, err)
	require.Zero(t, c.Len(), "rejected send must not enqueue or wake")
}

// These goroutine-driven blocking tests never call SetScheduler, so
// Channel stays in its no-Blocker fallback the whole way — the only
// mode safe to exercise under `go test` (see proc.Blocker's doc on why
// a real Blocker's Schedule() would corrupt the test process's own
// goroutine state instead of a kernel task's).
func TestFullChannelBlocksSenderUntilRecv(t *testing.T) {
	c := NewChannel(1)
	require.Equal(t, defs.OK, c.Send(1, Message{Payload: []byte("a")}, allowAll{}))

	sendDone := make(chan defs.Err_t, 1)
	go func() {
		sendDone <- c.Send(2, Message{Payload: []byte("b")}, allowAll{})
	}()

	select {
	case <-sendDone:
		t.Fatal("second send must block while channel is full")
	case <-time.After(20 * time.Millisecond):
	}

	msg, err := c.Recv(1)
	require.Equal(t, defs.OK, err)
	require.Equal(t, []byte("a"), msg.Payload)

	select {
	case got := <-sendDone:
		require.Equal(t, defs.OK, got)
	case <-time.After(time.Second):
		t.Fatal("blocked sender was never woken after a recv freed a slot")
	}

	msg, _ = c.Recv(1)
	require.Equal(t, []byte("b"), msg.Payload)
}

func TestEmptyChannelBlocksReceiverUntilSend(t *testing.T) {
	c := NewChannel(1)
	recvDone := make(chan Message, 1)
	go func() {
		msg, _ := c.Recv(1)
		recvDone <- msg
	}()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, defs.OK, c.Send(2, Message{Payload: []byte("woken")}, nil))

	select {
	case msg := <-recvDone:
		require.Equal(t, []byte("woken"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("blocked receiver was never woken after send")
	}
}

func TestCloseWakesAllWaitersWithClosedError(t *testing.T) {
	c := NewChannel(1)
	var wg sync.WaitGroup
	results := make([]defs.Err_t, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Recv(proc.Id(i))
			results[i] = err
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	c.Close()
	wg.Wait()
	for _, err := range results {
		require.Equal(t, defs.EChannelClosed, err)
	}
}

func TestSendAfterCloseFailsImmediately(t *testing.T) {
	c := NewChannel(1)
	c.Close()
	require.Equal(t, defs.EChannelClosed, c.Send(1, Message{}, nil))
}

func TestRecvDrainsBeforeFailingOnClosedChannel(t *testing.T) {
	c := NewChannel(2)
	require.Equal(t, defs.OK, c.Send(1, Message{Payload: []byte("queued")}, nil))
	c.Close()

	msg, err := c.Recv(1)
	require.Equal(t, defs.OK, err, "queued message must be delivered before the closed error")
	require.Equal(t, []byte("queued"), msg.Payload)

	_, err = c.Recv(1)
	require.Equal(t, defs.EChannelClosed, err)
}

func TestWakeOrderIsOldestReceiverFirst(t *testing.T) {
	c := NewChannel(1)
	type result struct {
		who int
		err defs.Err_t
	}
	results := make(chan result, 2)

	go func() {
		_, err := c.Recv(1)
		results <- result{1, err}
	}()
	time.Sleep(20 * time.Millisecond) // let goroutine 1 register as a waiter first
	go func() {
		_, err := c.Recv(2)
		results <- result{2, err}
	}()
	time.Sleep(20 * time.Millisecond) // let goroutine 2 register as a waiter second

	require.Equal(t, defs.OK, c.Send(3, Message{Payload: []byte("x")}, nil))
	first := <-results
	require.Equal(t, 1, first.who, "oldest waiting receiver must be woken first")

	c.Close()
	second := <-results
	require.Equal(t, 2, second.who)
	require.Equal(t, defs.EChannelClosed, second.err)
}

// fakeBlocker stands in for *sched.Scheduler in these tests: Schedule
// there drops into contextswitch_amd64.s, which sched_test.go's own
// header comment says would corrupt a hosted `go test` process (see
// proc.Blocker's doc). fakeBlocker emulates the same contract —
// Block+Schedule suspends the caller until a matching Wake — with a
// plain channel instead of raw-stack assembly, so Send/Recv's use of
// the real proc.Blocker interface can still be exercised end to end.
type fakeBlocker struct {
	mu      sync.Mutex
	blocked map[proc.Id]proc.BlockReason
	woken   []proc.Id
	resume  chan struct{}
}

func newFakeBlocker() *fakeBlocker {
	return &fakeBlocker{blocked: make(map[proc.Id]proc.BlockReason)}
}

func (f *fakeBlocker) Block(id proc.Id, reason proc.BlockReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[id] = reason
	f.resume = make(chan struct{})
}

func (f *fakeBlocker) Schedule() {
	f.mu.Lock()
	ch := f.resume
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

func (f *fakeBlocker) Wake(id proc.Id) {
	f.mu.Lock()
	delete(f.blocked, id)
	f.woken = append(f.woken, id)
	ch := f.resume
	f.resume = nil
	f.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func (f *fakeBlocker) isBlocked(id proc.Id) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blocked[id]
	return ok
}

func TestSendBlocksThroughWiredSchedulerInsteadOfAGoroutine(t *testing.T) {
	c := NewChannel(1)
	b := newFakeBlocker()
	c.SetScheduler(b)

	require.Equal(t, defs.OK, c.Send(1, Message{Payload: []byte("a")}, nil))

	done := make(chan defs.Err_t, 1)
	go func() { done <- c.Send(2, Message{Payload: []byte("b")}, nil) }()
	require.Eventually(t, func() bool { return b.isBlocked(2) }, time.Second, time.Millisecond,
		"blocked sender must register with the wired Blocker, not a Go channel")

	msg, err := c.Recv(1)
	require.Equal(t, defs.OK, err)
	require.Equal(t, []byte("a"), msg.Payload)
	require.Equal(t, defs.OK, <-done)
	require.Contains(t, b.woken, proc.Id(2))
}
