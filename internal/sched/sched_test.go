// Tests below exercise the ready-queue, block/wake, preempt-nesting,
// and timer-wheel logic directly — they never call Schedule(), which
// drops into assembly written for kpio's patched runtime (see
// contextswitch_amd64.s) and would corrupt a hosted `go test`
// process's own goroutine state if executed there.
package sched

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"kpio/internal/mem/pmm"
	"kpio/internal/mem/vmm"
	"kpio/internal/proc"
	"kpio/internal/trap"
)

func newScheduler(t *testing.T) (*Scheduler, *proc.Table) {
	tb := proc.NewTable(pmm.New(0, 4096), vmm.NewPhysMem())
	return New(tb), tb
}

func TestEnqueueOrdersByPriorityThenFIFO(t *testing.T) {
	s, _ := newScheduler(t)
	s.Enqueue(10, 5)
	s.Enqueue(11, 1)
	s.Enqueue(12, 5)
	s.Enqueue(13, 1)

	id, prio, ok := s.popHighest()
	require.True(t, ok)
	require.Equal(t, proc.Id(11), id)
	require.Equal(t, 1, prio)

	id, _, ok = s.popHighest()
	require.True(t, ok)
	require.Equal(t, proc.Id(13), id, "same priority level must stay FIFO")

	id, _, ok = s.popHighest()
	require.True(t, ok)
	require.Equal(t, proc.Id(10), id)
}

func TestWakeRequestsPreemptionForHigherPriority(t *testing.T) {
	s, _ := newScheduler(t)
	s.current, s.hasCurrent = 1, true
	s.priority[1] = 10

	s.blocked[2] = BlockChannel
	s.priority[2] = 2 // higher priority (lower number) than the running task
	s.Wake(2)

	require.True(t, s.NeedResched())
	require.NotContains(t, s.blocked, proc.Id(2))
}

func TestWakeLowerPriorityDoesNotPreempt(t *testing.T) {
	s, _ := newScheduler(t)
	s.current, s.hasCurrent = 1, true
	s.priority[1] = 2

	s.blocked[2] = BlockTimer
	s.priority[2] = 10
	s.Wake(2)

	require.False(t, s.NeedResched())
}

func TestPreemptDisableDefersSchedule(t *testing.T) {
	s, _ := newScheduler(t)
	s.PreemptDisable()
	s.needResched = true

	s.mu.Lock()
	depth := s.preemptDepth
	s.mu.Unlock()
	require.Equal(t, int32(1), depth)

	// PreemptEnable would normally drain by calling Schedule(), which
	// reaches into assembly; verify only the nesting/drain bookkeeping
	// here by inspecting state directly rather than calling Enable().
	s.mu.Lock()
	s.preemptDepth--
	drain := s.preemptDepth == 0 && s.needResched
	s.mu.Unlock()
	require.True(t, drain)
}

func TestTimerTickWakesDueEntriesAndDecrementsSlice(t *testing.T) {
	s, _ := newScheduler(t)
	s.current, s.hasCurrent = 1, true
	s.slice = 2
	s.priority[2] = 5
	s.blocked[2] = BlockTimer
	s.SleepUntil(2, 100)

	s.TimerTick(50)
	require.False(t, s.NeedResched(), "slice not yet exhausted, timer not yet due")

	s.TimerTick(100)
	require.True(t, s.NeedResched(), "slice exhausted on the second tick")
	require.NotContains(t, s.blocked, proc.Id(2), "due timer entry must be woken")
}

func TestCancelTimerPreventsLateWake(t *testing.T) {
	s, _ := newScheduler(t)
	s.SleepUntil(7, 10)
	s.CancelTimer(7)
	woken := s.timer.expire(100)
	require.Empty(t, woken)
}

func TestPrepareNewTaskSeedsReturnAddress(t *testing.T) {
	task := &proc.Task{KStack: make([]byte, 4096)}
	PrepareNewTask(task, 0xdeadbeef)
	require.NotZero(t, task.Context.RSP)
}

func TestPrepareFirstUserEntrySeedsFrameAndReturnAddress(t *testing.T) {
	task := &proc.Task{KStack: make([]byte, 4096)}
	PrepareFirstUserEntry(task, 0x400000, 0x7fffff00, 0x23, 0x2b, 0x202)
	require.NotZero(t, task.Context.RSP)

	trampAddr := task.Context.RSP
	base := uintptr(unsafe.Pointer(&task.KStack[0]))
	trampOff := int(trampAddr - base)
	require.GreaterOrEqual(t, trampOff, 0)
	require.Less(t, trampOff+8, len(task.KStack))

	gotTramp := binary.LittleEndian.Uint64(task.KStack[trampOff : trampOff+8])
	require.Equal(t, uint64(trap.FirstEntryAddr()), gotTramp)

	frameOff := trampOff + 8
	rip := binary.LittleEndian.Uint64(task.KStack[frameOff+17*8 : frameOff+18*8])
	require.EqualValues(t, 0x400000, rip)
}
