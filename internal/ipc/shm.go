package ipc

import (
	"sync"
	"sync/atomic"

	"kpio/internal/defs"
	"kpio/internal/mem/pmm"
	"kpio/internal/mem/vmm"
)

var nextRegionID uint64

// Region is a refcounted shared-memory range (spec §4.7 "Shared
// memory"): a set of non-necessarily-contiguous frames pulled from
// C1, mapped into zero or more address spaces.
type Region struct {
	Id     uint64
	frames *pmm.Allocator
	pages  []defs.Pa_t
	refs   int32

	mu       sync.Mutex
	mappings []mapping
}

type mapping struct {
	as    *vmm.AddressSpace
	vaddr defs.Va_t
}

// ShmHandle is what travels inside an ipc.Message: a reference to a
// Region without exposing the underlying pages directly (spec §4.7:
// "passes the handle (not the pages) to the receiver").
type ShmHandle struct {
	region *Region
}

func (r *Region) addRef() { atomic.AddInt32(&r.refs, 1) }

func (r *Region) Handle() *ShmHandle { return &ShmHandle{region: r} }

// ShmCreate allocates `pages` individual frames from frames and
// bundles them into a new region with a refcount of zero; the count
// rises with each shm_map or message handle transfer.
func ShmCreate(frames *pmm.Allocator, pages int) (*Region, defs.Err_t) {
	if pages <= 0 {
		return nil, defs.EInvalidArgument
	}
	got := make([]defs.Pa_t, 0, pages)
	for i := 0; i < pages; i++ {
		pa, err := frames.Alloc(0)
		if err != defs.OK {
			for _, p := range got {
				frames.Free(p, 0)
			}
			return nil, err
		}
		got = append(got, pa)
	}
	return &Region{
		Id:     atomic.AddUint64(&nextRegionID, 1),
		frames: frames,
		pages:  got,
	}, defs.OK
}

// ShmMap maps every frame of the region into as starting at vaddr
// (page-aligned, increasing) with user read/write permissions, and
// records the mapping so ShmUnmap can reverse it.
func ShmMap(r *Region, as *vmm.AddressSpace, vaddr defs.Va_t) defs.Err_t {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapped := 0
	for _, pa := range r.pages {
		va := vaddr + defs.Va_t(mapped*defs.PGSIZE)
		if err := as.Map(va, pa, defs.PTE_U|defs.PTE_W); err != defs.OK {
			for j := 0; j < mapped; j++ {
				as.Unmap(vaddr + defs.Va_t(j*defs.PGSIZE))
			}
			return err
		}
		mapped++
	}
	r.mappings = append(r.mappings, mapping{as: as, vaddr: vaddr})
	r.addRef()
	return defs.OK
}

// ShmUnmap removes the mapping of r previously installed at vaddr in
// as, drops the region's refcount, and returns the frames to C1 once
// the count reaches zero.
func ShmUnmap(r *Region, as *vmm.AddressSpace, vaddr defs.Va_t) defs.Err_t {
	r.mu.Lock()
	found := -1
	for i, m := range r.mappings {
		if m.as == as && m.vaddr == vaddr {
			found = i
			break
		}
	}
	if found == -1 {
		r.mu.Unlock()
		return defs.EInvalidArgument
	}
	r.mappings = append(r.mappings[:found], r.mappings[found+1:]...)
	r.mu.Unlock()

	for i := range r.pages {
		as.Unmap(vaddr + defs.Va_t(i*defs.PGSIZE))
	}

	if atomic.AddInt32(&r.refs, -1) == 0 {
		for _, pa := range r.pages {
			r.frames.Free(pa, 0)
		}
	}
	return defs.OK
}

// Pages reports the frame count backing r, used by tests and
// diagnostics.
func (r *Region) Pages() int { return len(r.pages) }
