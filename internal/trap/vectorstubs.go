package trap

import "reflect"

// vectorStubN are the asm trampolines generated in entry_amd64.s,
// one per IDT vector (0-47), each pushing its own vector number
// before falling into the shared trapEntry tail. Declared here with
// no body so the linker resolves them to the TEXT symbols in the .s
// file, the same no-body-extern convention contextSwitch/loadContext
// use in internal/sched.
func vectorStub0()
func vectorStub1()
func vectorStub2()
func vectorStub3()
func vectorStub4()
func vectorStub5()
func vectorStub6()
func vectorStub7()
func vectorStub8()
func vectorStub9()
func vectorStub10()
func vectorStub11()
func vectorStub12()
func vectorStub13()
func vectorStub14()
func vectorStub15()
func vectorStub16()
func vectorStub17()
func vectorStub18()
func vectorStub19()
func vectorStub20()
func vectorStub21()
func vectorStub22()
func vectorStub23()
func vectorStub24()
func vectorStub25()
func vectorStub26()
func vectorStub27()
func vectorStub28()
func vectorStub29()
func vectorStub30()
func vectorStub31()
func vectorStub32()
func vectorStub33()
func vectorStub34()
func vectorStub35()
func vectorStub36()
func vectorStub37()
func vectorStub38()
func vectorStub39()
func vectorStub40()
func vectorStub41()
func vectorStub42()
func vectorStub43()
func vectorStub44()
func vectorStub45()
func vectorStub46()
func vectorStub47()

// vectorStub48 is the LSTAR SYSCALL target (SetupSyscallMSRs wires
// its address in, not trapEntry's directly): it pushes SyscallVec the
// same way every other stub pushes its own vector number, so SYSCALL
// entry reuses the exact same Frame-building tail as an INT-based
// trap instead of needing a second one.
func vectorStub48()

var vectorStubTable = [NumVectors]func(){
	vectorStub0,
	vectorStub1,
	vectorStub2,
	vectorStub3,
	vectorStub4,
	vectorStub5,
	vectorStub6,
	vectorStub7,
	vectorStub8,
	vectorStub9,
	vectorStub10,
	vectorStub11,
	vectorStub12,
	vectorStub13,
	vectorStub14,
	vectorStub15,
	vectorStub16,
	vectorStub17,
	vectorStub18,
	vectorStub19,
	vectorStub20,
	vectorStub21,
	vectorStub22,
	vectorStub23,
	vectorStub24,
	vectorStub25,
	vectorStub26,
	vectorStub27,
	vectorStub28,
	vectorStub29,
	vectorStub30,
	vectorStub31,
	vectorStub32,
	vectorStub33,
	vectorStub34,
	vectorStub35,
	vectorStub36,
	vectorStub37,
	vectorStub38,
	vectorStub39,
	vectorStub40,
	vectorStub41,
	vectorStub42,
	vectorStub43,
	vectorStub44,
	vectorStub45,
	vectorStub46,
	vectorStub47,
	vectorStub48,
}

// vectorStubAddr returns the raw code address of vector v's asm
// trampoline, for installing into an IDT gate. reflect.ValueOf(fn)
// .Pointer() on a no-body extern func yields the linked TEXT address
// under the patched runtime's ABI, the same assumption every other
// piece of hand-written asm in this package depends on.
func vectorStubAddr(v int) uintptr {
	return reflect.ValueOf(vectorStubTable[v]).Pointer()
}

// SyscallEntryAddr is the address SetupSyscallMSRs's entry parameter
// expects: vectorStub48, not trapEntry directly (see the comment on
// vectorStub48 in entry_amd64.s for why SYSCALL needs its own stub).
func SyscallEntryAddr() uintptr { return vectorStubAddr(SyscallVec) }

// firstEntry is declared in entry_amd64.s; see the comment on its
// TEXT block there for what lands here and why.
func firstEntry()

// FirstEntryAddr is the address PrepareFirstUserEntry installs as a
// fresh task's synthetic return address.
func FirstEntryAddr() uintptr {
	return reflect.ValueOf(firstEntry).Pointer()
}

// UserEntryFrameSize is rawFrame's size in bytes: 15 general-purpose
// registers plus vector, error code, and the RIP/CS/RFLAGS/RSP/SS
// quintet, 22 uintptr-sized slots in total (see rawFrame in entry.go
// and the low-to-high memory layout restoreAndIRETQ's POPQ sequence
// expects).
const UserEntryFrameSize = 22 * 8

// BuildUserEntryFrame writes a rawFrame-shaped region into buf (which
// must be at least UserEntryFrameSize long) describing a task's very
// first trip into ring 3: every general-purpose register zeroed
// except the ones the new task needs seeded (entry point, stack,
// segment selectors, flags). buf is meant to be the tail of a task's
// kernel stack, with the synthetic return address
// (sched.PrepareFirstUserEntry's job) placed immediately below it.
func BuildUserEntryFrame(buf []byte, rip, rsp uintptr, userCS, userSS uint16, rflags uint64) {
	if len(buf) < UserEntryFrameSize {
		panic("trap: user entry frame buffer too small")
	}
	for i := range buf[:UserEntryFrameSize] {
		buf[i] = 0
	}
	putLE := func(slot int, v uint64) {
		off := slot * 8
		buf[off+0] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
		buf[off+4] = byte(v >> 32)
		buf[off+5] = byte(v >> 40)
		buf[off+6] = byte(v >> 48)
		buf[off+7] = byte(v >> 56)
	}
	// Slot order matches rawFrame: 15 GP regs (all zero), vector,
	// errcode, then RIP, CS, RFLAGS, RSP, SS.
	const (
		slotVector = 15
		slotErrCode = 16
		slotRIP    = 17
		slotCS     = 18
		slotRFlags = 19
		slotRSP    = 20
		slotSS     = 21
	)
	_ = slotErrCode // left zero: a first entry carries no fault error code
	putLE(slotVector, 0)
	putLE(slotRIP, uint64(rip))
	putLE(slotCS, uint64(userCS))
	putLE(slotRFlags, rflags)
	putLE(slotRSP, uint64(rsp))
	putLE(slotSS, uint64(userSS))
}
