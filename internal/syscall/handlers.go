package syscall

import (
	"encoding/binary"

	"kpio/internal/defs"
	"kpio/internal/mem/vmm"
	"kpio/internal/proc"
)

func (r *Router) buildTable() map[uintptr]entry {
	t := make(map[uintptr]entry)
	add := func(num uintptr, name string, fn func(*Router, *proc.Task, [6]uintptr) (int64, defs.Err_t)) {
		t[num] = entry{name: name, fn: fn}
	}

	add(sysRead, "read", sysReadFn)
	add(sysWrite, "write", sysWriteFn)
	add(sysOpen, "open", sysOpenFn)
	add(sysStat, "stat", sysStatFn)
	add(sysFstat, "fstat", sysFstatFn)
	add(sysClose, "close", sysCloseFn)
	add(sysLseek, "lseek", sysLseekFn)
	add(sysMmap, "mmap", sysMmapFn)
	add(sysMprotect, "mprotect", sysMprotectFn)
	add(sysMunmap, "munmap", sysMunmapFn)
	add(sysBrk, "brk", sysBrkFn)
	add(sysRtSigaction, "rt_sigaction", sysRtSigactionFn)
	add(sysRtSigprocmask, "rt_sigprocmask", sysRtSigprocmaskFn)
	add(sysIoctl, "ioctl", sysIoctlFn)
	add(sysReadv, "readv", sysStubOK)
	add(sysWritev, "writev", sysStubOK)
	add(sysAccess, "access", sysStubOK)
	add(sysPipe, "pipe", sysPipeFn)
	add(sysDup, "dup", sysDupFn)
	add(sysDup2, "dup2", sysDup2Fn)
	add(sysNanosleep, "nanosleep", sysStubOK)
	add(sysGetpid, "getpid", sysGetpidFn)
	add(sysFork, "fork", sysForkFn)
	add(sysExecve, "execve", sysExecveFn)
	add(sysExit, "exit", sysExitFn)
	add(sysWait4, "wait4", sysWait4Fn)
	add(sysKill, "kill", sysStubOK)
	add(sysUname, "uname", sysUnameFn)
	add(sysFcntl, "fcntl", sysStubOK)
	add(sysGetcwd, "getcwd", sysGetcwdFn)
	add(sysChdir, "chdir", sysStubOK)
	add(sysMkdir, "mkdir", sysStubOK)
	add(sysUnlink, "unlink", sysStubOK)
	add(sysReadlink, "readlink", sysReadlinkFn)
	add(sysGettimeofday, "gettimeofday", sysZeroFill16)
	add(sysGetuid, "getuid", sysZeroFn)
	add(sysGetgid, "getgid", sysZeroFn)
	add(sysGeteuid, "geteuid", sysZeroFn)
	add(sysGetegid, "getegid", sysZeroFn)
	add(sysArchPrctl, "arch_prctl", sysArchPrctlFn)
	add(sysGetdents64, "getdents64", sysZeroFn)
	add(sysSetTidAddress, "set_tid_address", sysSetTidAddressFn)
	add(sysClockGettime, "clock_gettime", sysZeroFill16)
	add(sysExitGroup, "exit_group", sysExitFn)
	add(sysTkill, "tkill", sysStubOK)
	add(sysFutex, "futex", sysFutexFn)
	add(sysOpenat, "openat", sysStubENOENT)
	add(sysReadlinkat, "readlinkat", sysReadlinkatFn)
	add(sysSetRobustList, "set_robust_list", sysStubOK)
	add(sysPipe2, "pipe2", sysPipeFn)
	add(sysPrlimit64, "prlimit64", sysStubOK)
	add(sysGetrandom, "getrandom", sysGetrandomFn)
	add(sysTgkill, "tgkill", sysStubOK)
	return t
}

func sysStubOK(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) { return 0, defs.OK }
func sysStubENOENT(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	return 0, defs.ENotFound
}
func sysZeroFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) { return 0, defs.OK }

// sysZeroFill16 writes a 16-byte all-zero struct to *a[0], covering
// gettimeofday/clock_gettime's timeval/timespec out-params; kpio has
// no wall clock source (spec's Non-goals exclude real-time fidelity),
// so the epoch-zero answer is what every caller of these gets.
func sysZeroFill16(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	if a[0] == 0 {
		return 0, defs.OK
	}
	if err := checkUserPtr(a[0]); err != defs.OK {
		return 0, err
	}
	return 0, t.AS.CopyOut(defs.Va_t(a[0]), make([]byte, 16))
}

// sysReadlinkFn implements readlink(path, buf, bufsiz).
func sysReadlinkFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	return readlinkCommon(r, t, a[0], a[1], a[2])
}

// sysReadlinkatFn implements readlinkat(dirfd, path, buf, bufsiz); the
// dirfd argument is ignored since there is no directory-relative
// filesystem to resolve it against, only the /proc/self/exe special
// case readlinkCommon already handles.
func sysReadlinkatFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	return readlinkCommon(r, t, a[1], a[2], a[3])
}

// readlinkCommon resolves /proc/self/exe to the path the kernel's
// execve last loaded (spec §6 ELF contract: "/proc/self/exe is
// resolvable via readlink for musl's init"); every other path fails
// not-found, since there is no symlink-capable filesystem behind this
// kernel. readlink(2) writes at most bufsiz bytes and is not NULL-
// terminated, unlike copyInCString's convention for incoming paths.
func readlinkCommon(r *Router, t *proc.Task, pathPtr, bufPtr, bufsiz uintptr) (int64, defs.Err_t) {
	path, err := copyInCString(t, defs.Va_t(pathPtr))
	if err != defs.OK {
		return 0, err
	}
	if path != "/proc/self/exe" {
		return 0, defs.ENotFound
	}
	r.mu.Lock()
	target := r.initPath
	r.mu.Unlock()
	if target == "" {
		return 0, defs.ENotFound
	}
	if err := checkUserPtr(bufPtr); err != defs.OK {
		return 0, err
	}
	out := []byte(target)
	if len(out) > int(bufsiz) {
		out = out[:bufsiz]
	}
	if cerr := t.AS.CopyOut(defs.Va_t(bufPtr), out); cerr != defs.OK {
		return 0, cerr
	}
	return int64(len(out)), defs.OK
}

func sysReadFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	fd, buf, n := int(a[0]), a[1], int(a[2])
	if err := checkUserPtr(buf); err != defs.OK {
		return 0, err
	}
	res, _, ok := t.Resource(fd)
	if !ok {
		return 0, defs.ENotFound
	}
	rd, ok := res.(proc.Reader)
	if !ok {
		return 0, defs.EInvalidArgument
	}
	tmp := make([]byte, n)
	got, err := rd.Read(tmp)
	if err != defs.OK {
		return 0, err
	}
	if cerr := t.AS.CopyOut(defs.Va_t(buf), tmp[:got]); cerr != defs.OK {
		return 0, cerr
	}
	return int64(got), defs.OK
}

func sysWriteFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	fd, buf, n := int(a[0]), a[1], int(a[2])
	if err := checkUserPtr(buf); err != defs.OK {
		return 0, err
	}
	res, _, ok := t.Resource(fd)
	if !ok {
		return 0, defs.ENotFound
	}
	wr, ok := res.(proc.Writer)
	if !ok {
		return 0, defs.EInvalidArgument
	}
	tmp := make([]byte, n)
	if err := t.AS.CopyIn(defs.Va_t(buf), tmp); err != defs.OK {
		return 0, err
	}
	put, err := wr.Write(tmp)
	return int64(put), err
}

func sysCloseFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	return 0, t.CloseFd(int(a[0]))
}

func sysDupFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	n, err := t.DupFd(int(a[0]))
	return int64(n), err
}

func sysDup2Fn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	err := t.Dup2Fd(int(a[0]), int(a[1]))
	return int64(a[1]), err
}

// mmapProtFlags translates the PROT_READ/WRITE/EXEC bits in a[2] (the
// standard mmap(2) argument order: addr, length, prot, flags, fd,
// offset) into kpio's PTE_* vocabulary. Only anonymous, fixed-less
// mappings are supported — file-backed mmap is out of scope (no VFS).
func mmapProtFlags(prot uintptr) uintptr {
	const (
		protRead  = 0x1
		protWrite = 0x2
		protExec  = 0x4
	)
	flags := defs.PTE_U
	if prot&protWrite != 0 {
		flags |= defs.PTE_W
	}
	if prot&protExec == 0 {
		flags |= defs.PTE_NX
	}
	return flags
}

func sysMmapFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	length := uintptr(a[1])
	if length == 0 {
		return 0, defs.EInvalidArgument
	}
	pages := (length + defs.PGOFFSET) / defs.PGSIZE
	size := pages * defs.PGSIZE
	start := t.NextMmapBase(defs.Va_t(size))
	t.AS.AddVMA(&vmm.VMA{Start: start, End: start + defs.Va_t(size), Perms: mmapProtFlags(a[2]), Backing: vmm.BackingAnon})
	return int64(start), defs.OK
}

func sysMprotectFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	start := defs.Va_t(a[0])
	length := defs.Va_t(a[1])
	return 0, t.AS.UpdateProtection(start, start+length, mmapProtFlags(a[2]))
}

func sysMunmapFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	start := defs.Va_t(a[0])
	length := uintptr(a[1])
	for off := uintptr(0); off < length; off += defs.PGSIZE {
		if _, err := t.AS.Unmap(start + defs.Va_t(off)); err != defs.OK && err != defs.ENotFound {
			return 0, err
		}
	}
	return 0, defs.OK
}

func sysBrkFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	requested := defs.Va_t(a[0])
	return int64(t.Sbrk(requested)), defs.OK
}

func sysRtSigactionFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	sig := int(a[0])
	if sig <= 0 || sig > 64 {
		return 0, defs.EInvalidArgument
	}
	if a[1] != 0 {
		t.SetSigHandler(sig, defs.Va_t(a[1]))
	}
	return 0, defs.OK
}

func sysRtSigprocmaskFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	return 0, defs.OK
}

const tiocgwinsz = 0x5413

func sysIoctlFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	if a[1] != tiocgwinsz {
		return 0, defs.ENotFound
	}
	if err := checkUserPtr(a[2]); err != defs.OK {
		return 0, err
	}
	// struct winsize{row,col,xpixel,ypixel u16}; a plausible 80x25
	// console, spec §4.9 "ioctl (TIOCGWINSZ only)".
	ws := []byte{25, 0, 80, 0, 0, 0, 0, 0}
	return 0, t.AS.CopyOut(defs.Va_t(a[2]), ws)
}

func sysGetpidFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	return int64(t.Id), defs.OK
}

func sysForkFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	child, err := r.table.Fork(t)
	if err != defs.OK {
		return 0, err
	}
	// spec §4.4: "returns the child's PID to the parent and 0 to the
	// child"; the 0-to-child half is the scheduler's responsibility
	// once it materializes the child's first trap frame (RAX), not
	// this call's — Router just hands back the new pid here.
	return int64(child.Id), defs.OK
}

func sysExecveFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	if r.loader == nil || r.images == nil {
		return 0, defs.ENotFound
	}
	path, err := copyInCString(t, defs.Va_t(a[0]))
	if err != defs.OK {
		return 0, err
	}
	argv, err := copyInStringVec(t, defs.Va_t(a[1]))
	if err != defs.OK {
		return 0, err
	}
	envp, err := copyInStringVec(t, defs.Va_t(a[2]))
	if err != defs.OK {
		return 0, err
	}
	image, err := r.images.ReadFile(path)
	if err != defs.OK {
		return 0, err
	}
	entryVA, err := t.Exec(r.loader, image)
	if err != defs.OK {
		return 0, err
	}
	if r.stack != nil {
		rsp, serr := r.stack.BuildStack(t.AS, image, argv, envp)
		if serr != defs.OK {
			return 0, serr
		}
		t.SetExecRSP(rsp)
	}
	r.SetInitPath(path)
	return int64(entryVA), defs.OK
}

// copyInStringVec reads a NULL-terminated argv/envp-style array of
// user pointers, following each one through copyInCString (execve's
// argv==NULL is legal and yields an empty slice, not an error).
func copyInStringVec(t *proc.Task, va defs.Va_t) ([]string, defs.Err_t) {
	if va == 0 {
		return nil, defs.OK
	}
	const maxEntries = 256
	var out []string
	ptrBuf := make([]byte, 8)
	for i := 0; i < maxEntries; i++ {
		if err := checkUserPtr(uintptr(va) + uintptr(i)*8); err != defs.OK {
			return nil, err
		}
		if err := t.AS.CopyIn(va+defs.Va_t(i*8), ptrBuf); err != defs.OK {
			return nil, err
		}
		entry := binary.LittleEndian.Uint64(ptrBuf)
		if entry == 0 {
			return out, defs.OK
		}
		s, err := copyInCString(t, defs.Va_t(entry))
		if err != defs.OK {
			return nil, err
		}
		out = append(out, s)
	}
	return nil, defs.EInvalidArgument
}

func sysExitFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	r.table.Exit(t, int(int32(a[0])))
	return 0, defs.OK
}

func sysWait4Fn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	const wnohang = 1
	pid, code, err := r.table.Wait4(t, proc.Id(int64(int32(a[0]))), a[2]&wnohang != 0)
	if err != defs.OK {
		return int64(pid), err
	}
	if a[1] != 0 {
		// spec §6 "Exit status encoding for wait4": (exit_code & 0xFF) << 8
		status := uint32(code&0xFF) << 8
		buf := []byte{byte(status), byte(status >> 8), byte(status >> 16), byte(status >> 24)}
		if cerr := t.AS.CopyOut(defs.Va_t(a[1]), buf); cerr != defs.OK {
			return 0, cerr
		}
	}
	return int64(pid), defs.OK
}

func sysUnameFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	if err := checkUserPtr(a[0]); err != defs.OK {
		return 0, err
	}
	// struct utsname: 6 fields x 65 bytes; sysname/release/machine are
	// the three musl actually inspects.
	buf := make([]byte, 6*65)
	copy(buf[0*65:], "Linux")
	copy(buf[2*65:], "6.1.0-kpio")
	copy(buf[4*65:], "x86_64")
	return 0, t.AS.CopyOut(defs.Va_t(a[0]), buf)
}

func sysGetcwdFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	if err := checkUserPtr(a[0]); err != defs.OK {
		return 0, err
	}
	buf := append([]byte("/"), 0)
	if int(a[1]) < len(buf) {
		return 0, defs.EInvalidArgument
	}
	if err := t.AS.CopyOut(defs.Va_t(a[0]), buf); err != defs.OK {
		return 0, err
	}
	return int64(len(buf)), defs.OK
}

func sysArchPrctlFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	const archSetFs = 0x1002
	const archGetFs = 0x1003
	switch a[0] {
	case archSetFs:
		t.SetFSBase(defs.Va_t(a[1]))
		return 0, defs.OK
	case archGetFs:
		if err := checkUserPtr(a[1]); err != defs.OK {
			return 0, err
		}
		var buf [8]byte
		fs := uint64(t.FSBase())
		for i := 0; i < 8; i++ {
			buf[i] = byte(fs >> (8 * i))
		}
		return 0, t.AS.CopyOut(defs.Va_t(a[1]), buf[:])
	default:
		return 0, defs.EInvalidArgument
	}
}

func sysSetTidAddressFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	return int64(t.Id), defs.OK
}

// sysFutexFn implements FUTEX_WAIT/FUTEX_WAKE (spec §4.9); the
// private/shared and clock-source bits in the op field are ignored,
// matching this kernel's single-address-space-per-wait-queue model.
func sysFutexFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	const (
		futexWait = 0
		futexWake = 1
		opMask    = 0xf
	)
	addr, op, val := defs.Va_t(a[0]), a[1]&opMask, uint32(a[2])
	switch op {
	case futexWait:
		var cur [4]byte
		if err := t.AS.CopyIn(addr, cur[:]); err != defs.OK {
			return 0, err
		}
		observed := uint32(cur[0]) | uint32(cur[1])<<8 | uint32(cur[2])<<16 | uint32(cur[3])<<24
		if observed != val {
			// spec's futex contract: a mismatch means don't block at
			// all; EChannelEmpty already maps to EAGAIN (see defs
			// errnoTable), the same errno Linux's futex(2) returns here.
			return 0, defs.EChannelEmpty
		}
		return 0, futexWaitTable.wait(addr)
	case futexWake:
		return int64(futexWaitTable.wake(addr, int(val))), defs.OK
	default:
		return 0, defs.EInvalidArgument
	}
}

func sysGetrandomFn(r *Router, t *proc.Task, a [6]uintptr) (int64, defs.Err_t) {
	buf, n := a[0], int(a[1])
	if err := checkUserPtr(buf); err != defs.OK {
		return 0, err
	}
	out := make([]byte, n)
	// spec carries no entropy source requirement beyond "musl static-
	// binary needs"; a deterministic counter-derived stream is enough
	// for musl's early-init getrandom(AT_RANDOM-style) probing without
	// pulling in a real CSPRNG dependency this kernel has no hardware
	// backing for.
	for i := range out {
		out[i] = byte(i*2654435761 + int(t.Id))
	}
	return int64(n), t.AS.CopyOut(defs.Va_t(buf), out)
}

func copyInCString(t *proc.Task, va defs.Va_t) (string, defs.Err_t) {
	if err := checkUserPtr(uintptr(va)); err != defs.OK {
		return "", err
	}
	const maxPath = 4096
	buf := make([]byte, 1)
	var out []byte
	for i := 0; i < maxPath; i++ {
		if err := t.AS.CopyIn(va+defs.Va_t(i), buf); err != defs.OK {
			return "", err
		}
		if buf[0] == 0 {
			return string(out), defs.OK
		}
		out = append(out, buf[0])
	}
	return "", defs.EInvalidArgument
}
