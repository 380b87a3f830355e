package vmm

import "kpio/internal/defs"

// 4-level x86_64 paging: PML4 -> PDPT -> PD -> PT -> 4 KiB leaf.
// levelShift[i] is the bit position of level i's 9-bit index within a
// virtual address, matching the teacher's pmap_walk constants.
var levelShift = [4]uint{39, 30, 21, 12}

const entriesPerTable = 512

func index(va defs.Va_t, level int) int {
	return int((uintptr(va) >> levelShift[level]) & 0x1ff)
}

// table is one physical page's worth of page-table entries, kept in
// the address space's private table store (tables are never shared
// across address spaces: clone_user_half always allocates fresh
// ones, per spec §4.2).
type table [entriesPerTable]uintptr

// allocTable carves a fresh zeroed table out of C1 and records it.
func (as *AddressSpace) allocTable() (defs.Pa_t, *table, defs.Err_t) {
	pa, err := as.frames.Alloc(0)
	if err != defs.OK {
		return 0, nil, err
	}
	t := &table{}
	as.tables[pa] = t
	return pa, t, defs.OK
}

func (as *AddressSpace) freeTable(pa defs.Pa_t) {
	delete(as.tables, pa)
	as.frames.Free(pa, 0)
}

// walk descends PML4 -> PT for va, returning a pointer to the leaf
// slot. When create is false, a missing intermediate table yields
// (nil, OK) rather than allocating one (used by unmap/lookup paths
// that must not populate new structure).
func (as *AddressSpace) walk(va defs.Va_t, create bool) (*uintptr, defs.Err_t) {
	cur := as.pml4Table
	for level := 0; level < 3; level++ {
		i := index(va, level)
		entry := cur[i]
		var next *table
		if entry&defs.PTE_P == 0 {
			if !create {
				return nil, defs.OK
			}
			pa, t, err := as.allocTable()
			if err != defs.OK {
				return nil, err
			}
			cur[i] = uintptr(pa) | defs.PTE_P | defs.PTE_W | defs.PTE_U
			next = t
		} else {
			pa := defs.Pa_t(entry & defs.PTE_ADDR)
			next = as.tables[pa]
			if next == nil {
				panic("vmm: intermediate table missing from table store")
			}
		}
		cur = next
	}
	i := index(va, 3)
	return &cur[i], defs.OK
}
