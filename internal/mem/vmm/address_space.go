package vmm

import (
	"sync"

	"kpio/internal/defs"
	"kpio/internal/mem/pmm"
)

// Invlpg issues a TLB invalidation for one page. The hosted build has
// no TLB to flush; production boot code overrides this with the real
// instruction, the way the teacher's tlb_shootdown is reached through
// a function variable it installs once the APIC is up.
var Invlpg = func(va defs.Va_t) {}

// AddressSpace is one process's address space: the PML4 plus every
// table it owns, and the VMA list describing what should be mapped
// where. Grounded on Vm_t (other_examples/.../biscuit-src-vm-as.go.go):
// same "one mutex guards page tables and the VMA list" design, same
// pgfltaken-style lock assertion, renamed to this package's
// vocabulary.
type AddressSpace struct {
	mu sync.Mutex

	frames *pmm.Allocator
	phys   *PhysMem

	pml4   defs.Pa_t
	pml4Table *table
	tables map[defs.Pa_t]*table

	vmas vmaList

	pgfltaken bool
}

// New creates an empty address space with a fresh PML4. Kernel-half
// entries (256..511) are left zero here; a caller wiring up a real
// boot sequence installs the shared kernel mapping afterward.
func New(frames *pmm.Allocator, phys *PhysMem) (*AddressSpace, defs.Err_t) {
	as := &AddressSpace{frames: frames, phys: phys, tables: make(map[defs.Pa_t]*table)}
	pa, t, err := as.allocTable()
	if err != defs.OK {
		return nil, err
	}
	as.pml4, as.pml4Table = pa, t
	return as, defs.OK
}

func (as *AddressSpace) lock() {
	as.mu.Lock()
	as.pgfltaken = true
}

func (as *AddressSpace) unlock() {
	as.pgfltaken = false
	as.mu.Unlock()
}

func (as *AddressSpace) lockassert() {
	if !as.pgfltaken {
		panic("vmm: address space lock must be held")
	}
}

// AddVMA records a new region's permissions and backing; it does not
// populate any mappings (those come from faults or an explicit Map,
// e.g. the ELF loader populating PT_LOAD contents).
func (as *AddressSpace) AddVMA(v *VMA) {
	as.lock()
	defer as.unlock()
	as.vmas.insert(v)
}

// Map installs a single 4 KiB mapping (spec §4.2 `map`). Fails with
// EAlreadyMapped if the page is already present, or propagates an
// allocation failure from an intermediate table.
func (as *AddressSpace) Map(va defs.Va_t, pa defs.Pa_t, flags uintptr) defs.Err_t {
	as.lock()
	defer as.unlock()
	return as.mapLocked(va, pa, flags)
}

func (as *AddressSpace) mapLocked(va defs.Va_t, pa defs.Pa_t, flags uintptr) defs.Err_t {
	as.lockassert()
	pte, err := as.walk(va, true)
	if err != defs.OK {
		return err
	}
	if *pte&defs.PTE_P != 0 {
		return defs.EAlreadyMapped
	}
	*pte = uintptr(pa) | flags | defs.PTE_P
	return defs.OK
}

// Unmap clears a page's PTE and invalidates the TLB entry, returning
// the physical frame that was mapped there (spec §4.2 `unmap`).
func (as *AddressSpace) Unmap(va defs.Va_t) (defs.Pa_t, defs.Err_t) {
	as.lock()
	defer as.unlock()
	pte, err := as.walk(va, false)
	if err != defs.OK {
		return 0, err
	}
	if pte == nil || *pte&defs.PTE_P == 0 {
		return 0, defs.ENotFound
	}
	pa := defs.Pa_t(*pte & defs.PTE_ADDR)
	*pte = 0
	Invlpg(va)
	return pa, defs.OK
}

// UpdateProtection walks every leaf PTE covering [start, end) and
// updates its flag bits in place, issuing invlpg per page (spec §4.2
// `update_protection`).
func (as *AddressSpace) UpdateProtection(start, end defs.Va_t, newflags uintptr) defs.Err_t {
	as.lock()
	defer as.unlock()
	for va := start; va < end; va += defs.PGSIZE {
		pte, err := as.walk(va, false)
		if err != defs.OK {
			return err
		}
		if pte == nil || *pte&defs.PTE_P == 0 {
			continue
		}
		addr := *pte & defs.PTE_ADDR
		*pte = addr | newflags | defs.PTE_P
		Invlpg(va)
	}
	return defs.OK
}

// translate resolves va to the physical frame and in-page byte slice
// backing it, resolving a fault first if the page isn't present yet
// (demand-zero/COW), the way the syscall router's copy-to/from-user
// helpers need to behave exactly like a real CPU page-table walk
// followed by the direct-map window (spec §4.2 "direct physical-map
// window").
func (as *AddressSpace) translate(va defs.Va_t, forWrite bool) (*[defs.PGSIZE]byte, int, defs.Err_t) {
	as.lock()
	pte, err := as.walk(va, false)
	needFault := err == defs.OK && (pte == nil || *pte&defs.PTE_P == 0)
	as.unlock()
	if needFault {
		if err := as.HandleFault(va, forWrite); err != defs.OK {
			return nil, 0, err
		}
	}

	as.lock()
	defer as.unlock()
	pte, err = as.walk(va, false)
	if err != defs.OK {
		return nil, 0, err
	}
	if pte == nil || *pte&defs.PTE_P == 0 {
		return nil, 0, defs.EInvalidAddress
	}
	if forWrite && *pte&defs.PTE_W == 0 {
		return nil, 0, defs.EPermissionDenied
	}
	pa := defs.Pa_t(*pte & defs.PTE_ADDR)
	return as.phys.Dmap(pa), int(va) & defs.PGOFFSET, defs.OK
}

// CopyOut copies from kernel memory src into the user address va
// (spec §4.9 "size-bounded memcpy-to-user"), crossing page boundaries
// as needed and refusing to touch anything past USER_ADDR_MAX.
func (as *AddressSpace) CopyOut(va defs.Va_t, src []byte) defs.Err_t {
	return as.copyUser(va, src, nil)
}

// CopyIn copies len(dst) bytes from the user address va into dst
// (spec §4.9 "memcpy-from-user").
func (as *AddressSpace) CopyIn(va defs.Va_t, dst []byte) defs.Err_t {
	return as.copyUser(va, nil, dst)
}

func (as *AddressSpace) copyUser(va defs.Va_t, src, dst []byte) defs.Err_t {
	n := len(src)
	write := true
	if dst != nil {
		n = len(dst)
		write = false
	}
	if end := va + defs.Va_t(n); end < va || end > defs.USER_ADDR_MAX {
		return defs.EInvalidAddress
	}
	for off := 0; off < n; {
		page, pageOff, err := as.translate(va+defs.Va_t(off), write)
		if err != defs.OK {
			return err
		}
		chunk := defs.PGSIZE - pageOff
		if chunk > n-off {
			chunk = n - off
		}
		if write {
			copy(page[pageOff:pageOff+chunk], src[off:off+chunk])
		} else {
			copy(dst[off:off+chunk], page[pageOff:pageOff+chunk])
		}
		off += chunk
	}
	return defs.OK
}

// CloneUserHalf deep-copies PML4 entries 0..255 into a new address
// space: every intermediate table is freshly allocated and every
// mapped leaf frame's contents are copied into a new physical frame
// (spec §4.2: "copying every mapped frame", not COW-shared — no frame
// is shared between the two address spaces afterwards).
func (as *AddressSpace) CloneUserHalf() (*AddressSpace, defs.Err_t) {
	as.lock()
	defer as.unlock()

	child, err := New(as.frames, as.phys)
	if err != defs.OK {
		return nil, err
	}
	for i := 0; i < 256; i++ {
		if as.pml4Table[i]&defs.PTE_P == 0 {
			continue
		}
		if err := as.cloneLevel(child, uintptr(i)<<levelShift[0], as.pml4Table[i], child.pml4Table, i, 0); err != defs.OK {
			return nil, err
		}
	}
	for _, v := range as.vmas.vmas {
		cp := *v
		child.vmas.insert(&cp)
	}
	return child, defs.OK
}

func (as *AddressSpace) cloneLevel(child *AddressSpace, vaBase uintptr, entry uintptr, dstTable *table, idx, level int) defs.Err_t {
	srcPa := defs.Pa_t(entry & defs.PTE_ADDR)
	flags := entry &^ defs.PTE_ADDR

	if level == 3 {
		newPa, err := as.frames.Alloc(0)
		if err != defs.OK {
			return err
		}
		srcBytes := as.phys.Dmap(srcPa)
		dstBytes := child.phys.Dmap(newPa)
		*dstBytes = *srcBytes
		dstTable[idx] = uintptr(newPa) | flags
		return defs.OK
	}

	srcTable := as.tables[srcPa]
	if srcTable == nil {
		panic("vmm: clone of address space with missing intermediate table")
	}
	newPa, newTable, err := child.allocTable()
	if err != defs.OK {
		return err
	}
	dstTable[idx] = uintptr(newPa) | flags
	for i := 0; i < entriesPerTable; i++ {
		if srcTable[i]&defs.PTE_P == 0 {
			continue
		}
		childVA := vaBase | uintptr(i)<<levelShift[level+1]
		if err := as.cloneLevel(child, childVA, srcTable[i], newTable, i, level+1); err != defs.OK {
			return err
		}
	}
	return defs.OK
}

// DestroyUserMappings frees every user frame and intermediate table
// and zeroes PML4[0..255] (spec §4.2 `destroy_user_mappings`).
func (as *AddressSpace) DestroyUserMappings() {
	as.lock()
	defer as.unlock()
	for i := 0; i < 256; i++ {
		if as.pml4Table[i]&defs.PTE_P == 0 {
			continue
		}
		as.destroyLevel(as.pml4Table[i], 0)
		as.pml4Table[i] = 0
	}
	as.vmas.clear()
}

func (as *AddressSpace) destroyLevel(entry uintptr, level int) {
	pa := defs.Pa_t(entry & defs.PTE_ADDR)
	if level == 3 {
		as.phys.Forget(pa)
		as.frames.Free(pa, 0)
		return
	}
	t := as.tables[pa]
	if t != nil {
		for i := 0; i < entriesPerTable; i++ {
			if t[i]&defs.PTE_P != 0 {
				as.destroyLevel(t[i], level+1)
			}
		}
	}
	as.freeTable(pa)
}
