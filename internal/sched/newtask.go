package sched

import (
	"encoding/binary"
	"unsafe"

	"kpio/internal/proc"
	"kpio/internal/trap"
)

// PrepareNewTask pre-pushes a synthetic return address onto t's
// kernel stack equal to entryTrampoline, so that contextSwitch's
// trailing `ret` enters the new task naturally the first time it is
// scheduled (spec §4.5: "For freshly-created tasks, the kernel
// pre-pushes a synthetic return address...").
func PrepareNewTask(t *proc.Task, entryTrampoline uintptr) {
	if len(t.KStack) < 8 {
		panic("sched: kernel stack too small to seed a return address")
	}
	sp := len(t.KStack) - 8
	binary.LittleEndian.PutUint64(t.KStack[sp:sp+8], uint64(entryTrampoline))
	t.Context.RSP = uintptr(unsafe.Pointer(&t.KStack[sp]))
}

// PrepareFirstUserEntry is PrepareNewTask's counterpart for a task
// whose very first run must land directly in ring 3 at rip/rsp (spec
// §4.9 execve: "the new task's first run begins at the ELF entry
// point"), rather than at an ordinary Go function. It lays a
// trap.BuildUserEntryFrame-shaped region at the top of t's kernel
// stack and points the synthetic return address at
// trap.FirstEntryAddr, so Schedule's first contextSwitch/loadContext
// into this task falls straight through trap.firstEntry's
// restoreAndIRETQ tail.
func PrepareFirstUserEntry(t *proc.Task, rip, rsp uintptr, userCS, userSS uint16, rflags uint64) {
	frameSize := trap.UserEntryFrameSize
	if len(t.KStack) < frameSize+8 {
		panic("sched: kernel stack too small for a first-entry frame")
	}
	frameOff := len(t.KStack) - frameSize
	trap.BuildUserEntryFrame(t.KStack[frameOff:], rip, rsp, userCS, userSS, rflags)

	trampOff := frameOff - 8
	binary.LittleEndian.PutUint64(t.KStack[trampOff:trampOff+8], uint64(trap.FirstEntryAddr()))
	t.Context.RSP = uintptr(unsafe.Pointer(&t.KStack[trampOff]))
}
