// Package defs holds the types and constants shared by every kernel
// subsystem: the kernel-internal error taxonomy, trap-frame layout,
// page-size/flag constants, and the handful of numeric limits that
// would otherwise be duplicated across packages.
package defs

import "golang.org/x/sys/unix"

// Err_t is the kernel's internal error representation: zero is success,
// a negative value names one of the KernelError variants below. There
// is no exception mechanism in Ring 0 (spec §7); every fallible
// operation returns (result..., Err_t).
type Err_t int

// KernelError taxonomy (spec §7). Each has a distinct negative Err_t
// value so it can double as a quick equality check in tests and logs.
const (
	OK Err_t = 0

	EOutOfMemory Err_t = -(iota + 1000)
	EInvalidAddress
	EAlreadyMapped
	EPermissionDenied
	ENotFound
	EInvalidCapability
	EChannelClosed
	EChannelFull
	EChannelEmpty
	EInvalidWasm
	EInvalidArgument
	EBusy
	EInterrupted
	ETimedOut
)

var taxonomyNames = map[Err_t]string{
	OK:                 "ok",
	EOutOfMemory:        "OutOfMemory",
	EInvalidAddress:     "InvalidAddress",
	EAlreadyMapped:      "AlreadyMapped",
	EPermissionDenied:   "PermissionDenied",
	ENotFound:           "NotFound",
	EInvalidCapability:  "InvalidCapability",
	EChannelClosed:      "ChannelClosed",
	EChannelFull:        "ChannelFull",
	EChannelEmpty:       "ChannelEmpty",
	EInvalidWasm:        "InvalidWasm",
	EInvalidArgument:    "InvalidArgument",
	EBusy:               "Busy",
	EInterrupted:        "Interrupted",
	ETimedOut:           "TimedOut",
}

// String renders the taxonomy name, or the Linux errno name
// (unix.ErrnoName) for a raw errno that was stuffed into an Err_t by a
// syscall-boundary conversion.
func (e Err_t) String() string {
	if n, ok := taxonomyNames[e]; ok {
		return n
	}
	if e < 0 {
		return unix.ErrnoName(unix.Errno(-e))
	}
	return "ok"
}

// errnoTable maps the KernelError taxonomy to the negative Linux errno
// the syscall router (C9) puts in RAX. Built from golang.org/x/sys/unix
// constants rather than hand duplicated numbers (see DESIGN.md).
var errnoTable = map[Err_t]int{
	OK:                 0,
	EOutOfMemory:        -int(unix.ENOMEM),
	EInvalidAddress:     -int(unix.EFAULT),
	EAlreadyMapped:      -int(unix.EEXIST),
	EPermissionDenied:   -int(unix.EPERM),
	ENotFound:           -int(unix.ENOENT),
	EInvalidCapability:  -int(unix.EPERM),
	EChannelClosed:      -int(unix.EPIPE),
	EChannelFull:        -int(unix.EAGAIN),
	EChannelEmpty:       -int(unix.EAGAIN),
	EInvalidWasm:        -int(unix.ENOEXEC),
	EInvalidArgument:    -int(unix.EINVAL),
	EBusy:               -int(unix.EBUSY),
	EInterrupted:        -int(unix.EINTR),
	ETimedOut:           -int(unix.ETIMEDOUT),
}

// Errno returns the negative Linux errno value the C9 router should
// place in RAX for this kernel error.
func (e Err_t) Errno() int64 {
	if e == OK {
		return 0
	}
	if v, ok := errnoTable[e]; ok {
		return int64(v)
	}
	// e already carries a raw negative Linux errno (e.g. a value
	// produced directly by FromErrno below); pass it through.
	return int64(e)
}

// FromErrno wraps a raw negative Linux errno (as used directly by
// syscall handlers that have no taxonomy-level equivalent, e.g.
// -ENOSYS for an unimplemented syscall number) as an Err_t.
func FromErrno(negErrno int) Err_t {
	return Err_t(negErrno)
}

// ENOSYS is returned by the router for syscall numbers outside the
// dispatch table (spec §4.9, invariant 6).
var ENOSYS = FromErrno(-int(unix.ENOSYS))
