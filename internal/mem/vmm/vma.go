// Package vmm is the virtual memory manager (spec §4.2, C2): page
// table manipulation, the VMA list that records each address range's
// backing kind and permissions, and copy-on-write / demand-zero page
// fault resolution. Grounded on Vm_t/Vmregion_t/Sys_pgfault in
// other_examples/.../biscuit-src-vm-as.go.go (locking discipline,
// PTE_COW/PTE_WASCOW handling, guard-page-via-zero-perms convention)
// and on gopher-os's vmm.go (page-fault-handler registration as a
// table of (vma predicate) -> resolver, FlagCopyOnWrite naming).
package vmm

import (
	"sort"

	"kpio/internal/defs"
)

// Backing tags what a VMA's pages come from, matching the teacher's
// mtype_t (VANON/VSANON/VFILE) minus the shared-file case (not named
// by the contract this package implements).
type Backing int

const (
	BackingAnon Backing = iota // demand-zero, private; CloneUserHalf copies its frames eagerly
	BackingFile                // populated by a loader (ELF PT_LOAD); faults then resolve as for BackingAnon
)

// VMA is a half-open virtual address range with uniform permissions
// and backing, spec §4.2's "the kernel locates the covering VMA".
type VMA struct {
	Start, End defs.Va_t // [Start, End), page-aligned
	Perms      uintptr   // PTE_U | PTE_W | PTE_NX subset; 0 means guard page
	Backing    Backing
}

func (v *VMA) covers(va defs.Va_t) bool { return va >= v.Start && va < v.End }

// vmaList keeps VMAs sorted by Start for Lookup by binary search, the
// way Vmregion_t's backing structure is an ordered range index.
type vmaList struct {
	vmas []*VMA
}

func (l *vmaList) insert(v *VMA) {
	i := sort.Search(len(l.vmas), func(i int) bool { return l.vmas[i].Start >= v.Start })
	l.vmas = append(l.vmas, nil)
	copy(l.vmas[i+1:], l.vmas[i:])
	l.vmas[i] = v
}

func (l *vmaList) lookup(va defs.Va_t) (*VMA, bool) {
	i := sort.Search(len(l.vmas), func(i int) bool { return l.vmas[i].Start > va })
	if i == 0 {
		return nil, false
	}
	v := l.vmas[i-1]
	if v.covers(va) {
		return v, true
	}
	return nil, false
}

func (l *vmaList) remove(start defs.Va_t) {
	for i, v := range l.vmas {
		if v.Start == start {
			l.vmas = append(l.vmas[:i], l.vmas[i+1:]...)
			return
		}
	}
}

func (l *vmaList) clear() { l.vmas = nil }
