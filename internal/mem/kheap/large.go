package kheap

import (
	"unsafe"

	"kpio/internal/defs"
)

// largeAlloc tracks a multi-frame allocation handed out directly by
// the physical allocator, bypassing slab caches entirely (spec §4.3:
// "allocations above the largest size class fall back to the buddy
// allocator directly").
type largeAlloc struct {
	frame defs.Pa_t
	order int
}

func orderForBytes(sz int) int {
	frames := (sz + defs.PGSIZE - 1) / defs.PGSIZE
	order := 0
	for (1 << order) < frames {
		order++
	}
	return order
}

func (h *Heap) allocLarge(sz int) []byte {
	order := orderForBytes(sz)
	addr, err := h.frames.Alloc(order)
	if err != defs.OK {
		panic("kheap: out of memory on large allocation (spec §4.3)")
	}
	backing := make([]byte, 1<<order*defs.PGSIZE)
	key := addrOf(backing)
	h.large.Store(key, largeAlloc{frame: addr, order: order})
	return backing
}

func (h *Heap) freeLarge(b []byte) {
	key := addrOf(b)
	v, ok := h.large.Load(key)
	if !ok {
		panic("kheap: free of untracked large allocation")
	}
	h.large.Delete(key)
	la := v.(largeAlloc)
	h.frames.Free(la.frame, la.order)
	// keep b reachable until the frame is returned, so a concurrent GC
	// (hosted test builds only) can't reclaim it out from under Free.
	_ = unsafe.Pointer(&b[0])
}
