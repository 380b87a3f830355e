package trap

import "kpio/internal/defs"

// Frame is the fixed-size register save area pushed by the entry stub
// on every exception, IRQ, or SYSCALL (spec §3 GLOSSARY references
// this implicitly via TF_* slot names; defs.TFSIZE/TF_* mirror the
// teacher's common.TFSIZE/TF_RIP etc. exactly).
type Frame [defs.TFSIZE]uintptr

// Vector returns the trap/IRQ vector number the entry stub recorded.
func (f *Frame) Vector() int { return int(f[defs.TF_TRAP]) }

// RIP/RSP/RAX are the fields every handler reads or rewrites most
// often; the rest of the TF_* slots are addressed directly by name
// where needed (mirrors tfdump's direct-index style in the teacher).
func (f *Frame) RIP() uintptr   { return f[defs.TF_RIP] }
func (f *Frame) RSP() uintptr   { return f[defs.TF_RSP] }
func (f *Frame) RAX() uintptr   { return f[defs.TF_RAX] }
func (f *Frame) SetRAX(v uintptr) { f[defs.TF_RAX] = v }

// ringCodeSelectorRPLMask is the low 2 bits of a segment selector,
// the x86 Requested Privilege Level; Ring-3 selectors always have
// RPL==3 (spec §4.6: "Ring-0 vs Ring-3 isolation via ... swapgs").
const ringCodeSelectorRPLMask = 0x3

// FromRing3 reports whether this trap arrived from user mode.
func (f *Frame) FromRing3() bool {
	return f[defs.TF_CS]&ringCodeSelectorRPLMask == ringCodeSelectorRPLMask
}

// SyscallArgs extracts the Linux-ABI syscall number and six argument
// registers C9 dispatches on (spec §4.9 "Entry": "arrives from C6 with
// seven arguments"), following the standard x86_64 Linux SYSCALL ABI
// register assignment (RAX=number, RDI,RSI,RDX,R10,R8,R9=args).
func (f *Frame) SyscallArgs() (num uintptr, args [6]uintptr) {
	return f[defs.TF_RAX], [6]uintptr{
		f[defs.TF_RDI], f[defs.TF_RSI], f[defs.TF_RDX],
		f[defs.TF_R10], f[defs.TF_R8], f[defs.TF_R9],
	}
}
