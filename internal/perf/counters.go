package perf

import "sync"

// Counters is the hardware profiling device interface (teacher's
// profhw_i): a no-op backend and an Intel architectural-PMC backend
// both satisfy it, selected once at boot by Select.
type Counters interface {
	Init(n uint)
	StartPMC(cs []Counter) ([]int, bool)
	StopPMC(idxs []int) []uint64
	StartNMI(e Event, f Flag, min, max uint) bool
	StopNMI() []uintptr
}

// NilCounters is teacher's nilprof_t: every operation is a no-op,
// selected whenever Select can't confirm architectural PMC support.
type NilCounters struct{}

func (NilCounters) Init(uint)                            {}
func (NilCounters) StartPMC([]Counter) ([]int, bool)     { return nil, false }
func (NilCounters) StopPMC([]int) []uint64                { return nil }
func (NilCounters) StartNMI(Event, Flag, uint, uint) bool { return false }
func (NilCounters) StopNMI() []uintptr                    { return nil }

type pmcSlot struct {
	alloced bool
	event   Event
}

type eventEncoding struct {
	event uint64
	umask uint64
}

// ArchPMC is teacher's intelprof_t, ported off runtime.Wrmsr/Rdmsr and
// onto the MSR seam so it runs the same counter-allocation bookkeeping
// against a SimMSR in tests as it would against real MSRs in a ring-0
// build.
type ArchPMC struct {
	mu     sync.Mutex
	msr    MSR
	pmcs   []pmcSlot
	events map[Event]eventEncoding
}

// NewArchPMC builds an ArchPMC driving msr, detecting the Xeon
// 5000-family non-architectural event extensions the same way
// teacher's prof_init does (CPUID family/model match).
func NewArchPMC(msr MSR, cpuid CPUIDFunc, numPMC uint) *ArchPMC {
	ip := &ArchPMC{msr: msr, pmcs: make([]pmcSlot, numPMC)}
	ip.events = map[Event]eventEncoding{
		EventUnhaltedCoreCycles: {0x3c, 0x00},
		EventLLCMisses:          {0x2e, 0x41},
		EventLLCRefs:            {0x2e, 0x4f},
		EventBranchInstrRetired: {0xc4, 0x00},
		EventBranchMissRetired:  {0xc5, 0x00},
		EventInstrRetired:       {0xc0, 0x00},
	}
	model, family := cpuidFamilyModel(cpuid)
	if family == 0x6 && model == 0x1e {
		for e, enc := range map[Event]eventEncoding{
			EventDTLBLoadMissAny:  {0x08, 0x1},
			EventDTLBLoadMissSTLB: {0x08, 0x2},
			EventStoreDTLBMiss:    {0x0c, 0x1},
			EventITLBLoadMissAny:  {0x85, 0x1},
			EventL2LDHits:         {0x24, 0x1},
		} {
			ip.events[e] = enc
		}
	}
	return ip
}

func (ip *ArchPMC) Init(n uint) { ip.pmcs = make([]pmcSlot, n) }

func (ip *ArchPMC) ev2sel(e Event, f Flag) uint64 {
	enc := ip.events[e]
	const (
		usr = 1 << 16
		os  = 1 << 17
		en  = 1 << 22
	)
	v := enc.umask<<8 | enc.event | en
	if f&FlagOS != 0 {
		v |= os
	}
	if f&FlagUSR != 0 {
		v |= usr
	}
	if f == 0 {
		v |= os | usr
	}
	return v
}

func (ip *ArchPMC) pmcStart(idx int, e Event, f Flag) {
	pmc := uint32(ia32PMC0 + idx)
	sel := uint32(ia32PerfEvtSel0 + idx)
	ip.msr.WriteMSR(sel, 0)
	ip.msr.WriteMSR(pmc, 0)
	ip.msr.WriteMSR(sel, ip.ev2sel(e, f))
}

func (ip *ArchPMC) pmcStop(idx int) uint64 {
	pmc := uint32(ia32PMC0 + idx)
	sel := uint32(ia32PerfEvtSel0 + idx)
	v := ip.msr.ReadMSR(pmc)
	ip.msr.WriteMSR(sel, 0)
	return v
}

// StartPMC allocates one counter per requested Counter. If any
// requested Event isn't supported, or there aren't enough free
// counters for the whole batch, nothing is started (all-or-nothing,
// same as teacher's startpmc).
func (ip *ArchPMC) StartPMC(cs []Counter) ([]int, bool) {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	for _, c := range cs {
		if _, ok := ip.events[c.Event]; !ok {
			return nil, false
		}
	}
	free := 0
	for i := range ip.pmcs {
		if !ip.pmcs[i].alloced {
			free++
		}
	}
	if free < len(cs) {
		return nil, false
	}

	idxs := make([]int, 0, len(cs))
outer:
	for _, c := range cs {
		for i := range ip.pmcs {
			if !ip.pmcs[i].alloced {
				ip.pmcs[i] = pmcSlot{alloced: true, event: c.Event}
				ip.pmcStart(i, c.Event, c.Flags)
				idxs = append(idxs, i)
				continue outer
			}
		}
	}
	return idxs, true
}

// StopPMC reads and frees each counter named in idxs. An already-free
// index reads back zero, same as teacher's stoppmc.
func (ip *ArchPMC) StopPMC(idxs []int) []uint64 {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	out := make([]uint64, len(idxs))
	for i, idx := range idxs {
		if idx < 0 || idx >= len(ip.pmcs) || !ip.pmcs[idx].alloced {
			continue
		}
		ip.pmcs[idx].alloced = false
		out[i] = ip.pmcStop(idx)
	}
	return out
}

// StartNMI and StopNMI mirror teacher's NMI-sampling entry points,
// which depend on runtime.SetNMI/TakeNMIBuf — intrinsics only the
// teacher's forked runtime provides. There is no portable stand-in for
// an NMI delivery path in hosted Go, so this package reports the
// request as unsupported rather than fabricate one; PMC counting
// (StartPMC/StopPMC) is unaffected and fully functional.
func (ip *ArchPMC) StartNMI(Event, Flag, uint, uint) bool { return false }
func (ip *ArchPMC) StopNMI() []uintptr                    { return nil }
