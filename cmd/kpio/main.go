// Command kpio is the kernel entry point (spec §6 "Boot handoff"):
// it decodes the UEFI-provided BootInfo, brings up C1-C10, and execs
// the init binary. Grounded on the teacher's main() (main.go's "magic
// loop" banner, structchk/cpuchk, attach_devs/kbd_init, cpus_start,
// and the closing "exec(bin/init, nil)" / "sleep forever" shape), with
// each teacher subsystem call replaced by this module's own.
package main

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"kpio/internal/boot"
	"kpio/internal/cap"
	"kpio/internal/console"
	"kpio/internal/defs"
	"kpio/internal/elf"
	"kpio/internal/klog"
	"kpio/internal/mem/kheap"
	"kpio/internal/mem/pmm"
	"kpio/internal/mem/vmm"
	"kpio/internal/perf"
	"kpio/internal/proc"
	"kpio/internal/sched"
	"kpio/internal/syscall"
	"kpio/internal/trap"
)

// Selector layout SetupSyscallMSRs/SYSRET expect (spec §4.6): kernel
// CS/SS sit in the low GDT slots a real boot shim builds; this module
// builds no GDT of its own (there is nothing resembling one anywhere
// in the pack), so the selectors below are symbolic constants assumed
// wired up the same way the STAR MSR packing convention in
// internal/trap/msr.go already names them, consistent with that
// package's "meaningful only under kpio's patched runtime" caveat.
const (
	kernCS     uint16 = 0x08
	userCSBase uint16 = 0x18
	userCS            = (userCSBase + 16) | 3
	userSS            = (userCSBase + 8) | 3

	fmaskIF = 1 << 9 // SYSCALL clears RFLAGS.IF per bits set here (spec §4.6)
)

const (
	kernelStackSize = 64 * 1024
	initPriority    = 10
	lapicEOIOffset  = 0xb0
)

// main is the process entry point Go's runtime requires; it carries
// no arguments because nothing resembling a UEFI handoff pointer can
// reach a standard `func main()` signature. The real entry point a
// boot shim jumps to is kmain, called here with a BootInfo this
// binary does not otherwise have a way to construct on its own.
func main() {
	kmain(nil, boot.ParseCmdLine(""))
}

func kmain(info *boot.Info, cl boot.CmdLine) {
	fmt.Fprintf(os.Stderr, "                kpio\n")
	fmt.Fprintf(os.Stderr, "          go version: %v\n", runtime.Version())

	boot.SelfCheck()

	if info == nil {
		klog.Warn("no BootInfo handed to kmain; nothing further to bring up")
		var dur chan bool
		<-dur
	}

	phys := vmm.NewPhysMem()
	usable := info.UsableFrames()
	if len(usable) == 0 {
		klog.Panic("no usable memory descriptors in BootInfo memory map")
		panic("kpio: no usable memory")
	}
	largest := usable[0]
	for _, d := range usable[1:] {
		if d.PageCount > largest.PageCount {
			largest = d
		}
	}
	frames := pmm.New(largest.PhysStart, int(largest.PageCount))
	heap := kheap.New(frames)

	klog.Info("%d MB of physical memory, %d usable frames in the largest run",
		largest.PageCount*defs.PGSIZE>>20, largest.PageCount)
	klog.Trace("kheap size classes at boot: %v", heap.DebugSizes())

	// ACPI: locate the MADT via the RSDT/XSDT and enumerate logical
	// CPUs, parking every AP beyond the boot processor (SPEC_FULL.md
	// §12.1).
	rsdp, err := boot.ReadRSDP(phys, info.AcpiRSDP)
	if err != defs.OK {
		klog.Panic("malformed RSDP at %#x", info.AcpiRSDP)
		panic("kpio: bad RSDP")
	}
	madtPA, err := boot.FindTable(phys, rsdp, "APIC")
	if err != defs.OK {
		klog.Panic("no MADT in RSDT/XSDT")
		panic("kpio: no MADT")
	}
	madt, err := boot.ParseMADT(phys, madtPA)
	if err != defs.OK {
		klog.Panic("malformed MADT")
		panic("kpio: bad MADT")
	}
	parked := boot.ParkCPUs(madt, cl, func(apicID uint8) uintptr {
		return apStackTop()
	})
	klog.Info("found %d CPUs, %d parked", len(madt.CPUs), len(parked))

	// Interrupt/exception dispatch and SYSCALL entry (C6/C10).
	idt := trap.BuildIDT(kernCS)
	idt.Load()
	trap.SetupSyscallMSRs(kernCS, userCSBase, trap.SyscallEntryAddr(), fmaskIF)

	trap.EOI = func() {
		lapic := phys.Dmap(madt.LocalAPICAddress)
		lapic[lapicEOIOffset] = 0
	}

	trap.SetFatalHandler(func(f *trap.Frame) {
		klog.Panic("unhandled exception %d at rip=%#x (ring3=%v)", f.Vector(), f.RIP(), f.FromRing3())
		if !f.FromRing3() {
			panic(fmt.Sprintf("kpio: fatal exception %d in ring 0", f.Vector()))
		}
	})

	// Perf counters (SPEC_FULL.md §12.3), backed by real CPUID/MSR now
	// that hardware access exists (internal/trap's cpuid_amd64.s).
	counters := perf.Select(trap.CPUID, trap.HWMSR{})
	counters.Init(4)

	// Process table, scheduler, capability registry, syscall router.
	table := proc.NewTable(frames, phys)
	scheduler := sched.New(table)
	table.SetBlocker(scheduler)
	registry := cap.NewRegistry()

	con := console.New()
	stdout := console.NewOut(os.Stdout)

	trap.RegisterIRQ(trap.Keyboard, func(f *trap.Frame) {
		con.KeyboardIRQ(int(trap.InB(0x60)))
	})
	trap.RegisterIRQ(trap.COM1, func(f *trap.Frame) {
		con.SerialIRQ(trap.InB(0x3f8))
	})
	trap.RegisterIRQ(trap.Timer, func(f *trap.Frame) {
		scheduler.TimerTick(1)
		if scheduler.NeedResched() {
			scheduler.Schedule()
		}
	})
	trap.RegisterException(trap.PageFault, func(f *trap.Frame) {
		id, ok := scheduler.Current()
		if !ok {
			klog.Panic("page fault with no current task, addr=%#x", trap.FaultAddress())
			panic("kpio: page fault outside any task")
		}
		t, ok := table.Get(id)
		if !ok {
			klog.Panic("page fault: current task %v not in table", id)
			panic("kpio: current task missing")
		}
		write := trap.PageFaultWrite(f[defs.TF_TRAPNO])
		if e := t.AS.HandleFault(defs.Va_t(trap.FaultAddress()), write); e != defs.OK {
			if !f.FromRing3() {
				klog.Panic("unrecoverable page fault in ring 0 at %#x", trap.FaultAddress())
				panic("kpio: ring0 page fault")
			}
			table.Exit(t, int(e.Errno()))
			scheduler.Schedule()
		}
	})

	images := &initramfsImageSource{phys: phys, initramfs: info.Initramfs}

	router := syscall.New(table)
	router.SetTrace(cl.Trace())
	loader := elf.New()
	router.SetLoader(loader)
	router.SetStackBuilder(elfStackBuilder{})
	router.SetImageSource(images)

	trap.RegisterSyscall(func(f *trap.Frame) {
		id, ok := scheduler.Current()
		if !ok {
			f.SetRAX(uintptr(defs.ENOSYS.Errno()))
			return
		}
		t, ok := table.Get(id)
		if !ok {
			f.SetRAX(uintptr(defs.ENOSYS.Errno()))
			return
		}
		num, args := f.SyscallArgs()
		ret := router.Dispatch(t, num, args)
		f.SetRAX(uintptr(ret))
		if rsp, ok := t.TakeExecRSP(); ok {
			f[defs.TF_RSP] = uintptr(rsp)
			f[defs.TF_RIP] = uintptr(ret)
		}
	})

	// Seed the initial global capability set at boot with a single root
	// capability: a FileSubtree grant over "/" with read, write and
	// exec. No capability over the memory map or the MADT's CPUs is
	// created here.
	rootCaps := cap.NewSet()
	registry.CreateRoot(rootCaps, cap.FileSubtree, cap.Restriction{PathPrefix: "/", Read: true, Write: true, Exec: true})

	exec := func(path string, argv []string) *proc.Task {
		t, err := table.New(0, initPriority)
		if err != defs.OK {
			klog.Panic("could not create initial task: %v", err)
			panic("kpio: task creation failed")
		}
		t.Caps = rootCaps
		t.SetStdio(0, con, 0o4)
		t.SetStdio(1, stdout, 0o2)
		t.SetStdio(2, stdout, 0o2)
		t.KStack = make([]byte, kernelStackSize)

		bytes, rerr := images.ReadFile(path)
		if rerr != defs.OK {
			klog.Panic("could not read %s from initramfs: %v", path, rerr)
			panic("kpio: init image missing")
		}
		entry, lerr := t.Exec(loader, bytes)
		if lerr != defs.OK {
			klog.Panic("exec %s failed: %v", path, lerr)
			panic("kpio: init exec failed")
		}
		rsp, serr := elf.BuildStack(t.AS, bytes, append([]string{path}, argv...), nil)
		if serr != defs.OK {
			klog.Panic("building stack for %s failed: %v", path, serr)
			panic("kpio: init stack failed")
		}
		sched.PrepareFirstUserEntry(t, uintptr(entry), uintptr(rsp), userCS, userSS, fmaskIF)
		scheduler.Enqueue(t.Id, initPriority)
		return t
	}

	exec("/bin/init", nil)

	scheduler.Schedule()

	// sleep forever: the scheduler's timer-driven preemption is the
	// only thing that ever runs another task from here on.
	var dur chan bool
	<-dur
}

// elfStackBuilder adapts internal/elf's package-level BuildStack func
// to the syscall.StackBuilder method interface.
type elfStackBuilder struct{}

func (elfStackBuilder) BuildStack(as *vmm.AddressSpace, image []byte, argv, envp []string) (defs.Va_t, defs.Err_t) {
	return elf.BuildStack(as, image, argv, envp)
}

// initramfsImageSource treats the whole initramfs physical range as a
// single flat ELF64 binary (spec §4.9 execve "reads the ELF via VFS
// (external)" — there is no VFS and no archive-format parser anywhere
// in this module or the pack, so path is accepted but ignored; the one
// image this kernel ever execs is the initramfs itself).
type initramfsImageSource struct {
	phys      *vmm.PhysMem
	initramfs boot.Initramfs
}

func (s *initramfsImageSource) ReadFile(path string) ([]byte, defs.Err_t) {
	if s.initramfs.Size == 0 {
		return nil, defs.ENotFound
	}
	buf := make([]byte, s.initramfs.Size)
	boot.ReadPhys(s.phys, s.initramfs.Start, buf)
	return buf, defs.OK
}

// apStackTop hands ParkCPUs a kernel-stack top for a parked AP. Real
// per-AP stacks come out of the frame allocator once AP scheduling
// exists; until then a parked AP never touches its stack, so a
// freshly allocated Go slice stands in for one.
func apStackTop() uintptr {
	s := make([]byte, kernelStackSize)
	return uintptr(unsafe.Pointer(&s[len(s)-1])) + 1
}
