package trap

import "kpio/internal/defs"

// rawFrame is the layout trapEntry (entry_amd64.s) actually leaves on
// the stack: the 15 general registers it pushes, in push order, then
// the vector, the (possibly synthesized) error code, and the
// CPU-pushed RIP/CS/RFLAGS/RSP/SS quintet.
type rawFrame struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uintptr
	DI, SI, BP, BX, DX, CX, AX           uintptr
	Vector, ErrCode                     uintptr
	RIP, CS, RFlags, RSP, SS            uintptr
}

// dispatchFromAsm is trapEntry's sole call into Go. It copies the raw
// pushed-register layout into the TF_* Frame layout the rest of the
// package operates on, runs Dispatch, and writes back the handful of
// fields a handler may legitimately rewrite (RAX for a syscall return
// value, RIP/RSP for a signal-style frame takeover) before returning
// to asm.
//
//go:nosplit
func dispatchFromAsm(raw *rawFrame) {
	var f Frame
	f[defs.TF_R15] = raw.R15
	f[defs.TF_R14] = raw.R14
	f[defs.TF_R13] = raw.R13
	f[defs.TF_R12] = raw.R12
	f[defs.TF_R11] = raw.R11
	f[defs.TF_R10] = raw.R10
	f[defs.TF_R9] = raw.R9
	f[defs.TF_R8] = raw.R8
	f[defs.TF_RBP] = raw.BP
	f[defs.TF_RDI] = raw.DI
	f[defs.TF_RSI] = raw.SI
	f[defs.TF_RDX] = raw.DX
	f[defs.TF_RCX] = raw.CX
	f[defs.TF_RBX] = raw.BX
	f[defs.TF_RAX] = raw.AX
	f[defs.TF_TRAPNO] = raw.ErrCode
	f[defs.TF_RIP] = raw.RIP
	f[defs.TF_CS] = raw.CS
	f[defs.TF_RFLAGS] = raw.RFlags
	f[defs.TF_RSP] = raw.RSP
	f[defs.TF_SS] = raw.SS
	f[defs.TF_TRAP] = raw.Vector

	Dispatch(&f)

	raw.AX = f[defs.TF_RAX]
	raw.RIP = f[defs.TF_RIP]
	raw.RSP = f[defs.TF_RSP]
}
