package vmm

import "kpio/internal/defs"

// HandleFault resolves a page fault at faultVA, either demand-zeroing
// or copy-on-writing a frame, per spec §4.2 "Faults". Faults outside
// any VMA return EInvalidAddress; writes to a read-only VMA (or any
// access to a guard VMA) return EPermissionDenied — the caller (C10's trap dispatch) treats either as
// fatal for the task (SIGSEGV-equivalent termination), mirroring
// Sys_pgfault's isguard/writeok checks in the teacher.
func (as *AddressSpace) HandleFault(faultVA defs.Va_t, iswrite bool) defs.Err_t {
	as.lock()
	defer as.unlock()

	va := defs.Va_t(uintptr(faultVA) &^ defs.PGOFFSET)
	vma, ok := as.vmas.lookup(va)
	if !ok {
		return defs.EInvalidAddress
	}
	if vma.Perms == 0 {
		return defs.EPermissionDenied
	}
	if iswrite && vma.Perms&defs.PTE_W == 0 {
		return defs.EPermissionDenied
	}

	pte, err := as.walk(va, true)
	if err != defs.OK {
		return err
	}

	present := *pte&defs.PTE_P != 0
	if present {
		// a second thread already resolved this exact race (spec §4.2
		// notes this as benign on reattempt); a write fault against an
		// already-writable page is also a no-op.
		if !iswrite || *pte&defs.PTE_W != 0 {
			return defs.OK
		}
	}

	if present {
		return as.resolveCOW(pte, vma, va)
	}
	return as.resolveDemandZero(pte, vma, va, iswrite)
}

func (as *AddressSpace) resolveDemandZero(pte *uintptr, vma *VMA, va defs.Va_t, iswrite bool) defs.Err_t {
	perms := defs.PTE_U | defs.PTE_P
	if !iswrite {
		zero := as.phys.ZeroFrame(func() defs.Pa_t {
			pa, err := as.frames.Alloc(0)
			if err != defs.OK {
				panic("vmm: failed to allocate the shared zero frame")
			}
			return pa
		})
		*pte = uintptr(zero) | perms
		return defs.OK
	}

	pa, err := as.frames.Alloc(0)
	if err != defs.OK {
		return defs.EOutOfMemory
	}
	// allocated frame is already zeroed by PhysMem.Dmap's first touch.
	as.phys.Dmap(pa)
	if vma.Perms&defs.PTE_W != 0 {
		perms |= defs.PTE_W
	}
	*pte = uintptr(pa) | perms
	return defs.OK
}

// resolveCOW handles a write fault against a present, read-only page
// (the shared zero frame, or a page inherited read-only from a
// clone): allocate a private copy, install it writable.
func (as *AddressSpace) resolveCOW(pte *uintptr, vma *VMA, va defs.Va_t) defs.Err_t {
	oldPa := defs.Pa_t(*pte & defs.PTE_ADDR)
	pa, err := as.frames.Alloc(0)
	if err != defs.OK {
		return defs.EOutOfMemory
	}
	src := as.phys.Dmap(oldPa)
	dst := as.phys.Dmap(pa)
	*dst = *src
	*pte = uintptr(pa) | defs.PTE_U | defs.PTE_W | defs.PTE_P
	Invlpg(va)
	return defs.OK
}
