// Package pmm is the physical frame allocator (spec §4.1, C1): an
// 11-order (2^0..2^10 frames) buddy allocator over a preallocated
// per-frame metadata array, grounded on the teacher's phys_init/
// physpg_t free-list bookkeeping in main.go (a singly-linked free list
// threaded through a []physpg_t, refcounts initialized to a sentinel
// before any frame is known-free).
package pmm

import (
	"sync"

	"kpio/internal/defs"
)

// MaxOrder is the largest contiguous run alloc/free deal in, 2^10
// frames = 4 MiB, per spec §4.1.
const MaxOrder = 10

// frame holds the per-physical-frame metadata: which buddy-order free
// list (if any) it heads, and a debug-only "exact allocation" bitmap
// entry so free() can assert its precondition (spec §4.1: "behavior is
// undefined if frame was not the exact allocation (enforced by debug
// check against a bitmap)").
type frame struct {
	// order this frame is free at, or -1 if allocated/reserved.
	freeOrder int8
	// allocOrder records the order an allocated frame was handed out
	// at, checked by Free in debug builds.
	allocOrder int8
	allocated  bool
}

// Stats mirrors spec §4.1's "total / free / allocated frames".
type Stats struct {
	Total     int
	Free      int
	Allocated int
}

// Allocator is the buddy allocator over a contiguous physical region
// starting at Base and spanning NFrames 4 KiB frames.
type Allocator struct {
	mu sync.Mutex

	base    defs.Pa_t
	nframes int
	frames  []frame

	// freeList[k] is the head frame index of order-k's free list, or -1.
	// Frames are linked via next[i], a separate slice kept apart
	// from the metadata struct so zeroing the struct never perturbs
	// list linkage. Order-0 runs are single frames; order-k runs are
	// 2^k contiguous frames identified by the index of their first frame.
	freeList [MaxOrder + 1]int
	next     []int32

	debug bool
}

// New creates an allocator over nframes frames starting at base, with
// every frame initially free at the highest order that evenly divides
// the region, the way the teacher's phys_init reserves a block of
// pages and threads them onto physmem's free list before anything else
// in the kernel runs.
func New(base defs.Pa_t, nframes int) *Allocator {
	a := &Allocator{
		base:    base,
		nframes: nframes,
		frames:  make([]frame, nframes),
		next:    make([]int32, nframes),
		debug:   true,
	}
	for i := range a.freeList {
		a.freeList[i] = -1
	}
	for i := range a.frames {
		a.frames[i].freeOrder = -1
	}
	a.seed()
	return a
}

// seed partitions [0, nframes) into maximal aligned buddy blocks and
// pushes each onto its natural order's free list.
func (a *Allocator) seed() {
	i := 0
	for i < a.nframes {
		order := MaxOrder
		for order > 0 {
			size := 1 << order
			if i%size == 0 && i+size <= a.nframes {
				break
			}
			order--
		}
		a.pushFree(i, order)
		i += 1 << order
	}
}

func (a *Allocator) pushFree(idx, order int) {
	a.frames[idx].freeOrder = int8(order)
	a.next[idx] = int32(a.freeList[order])
	a.freeList[order] = idx
}

// popFree removes and returns the head of free list order, or -1.
func (a *Allocator) popFree(order int) int {
	idx := a.freeList[order]
	if idx == -1 {
		return -1
	}
	a.freeList[order] = int(a.next[idx])
	a.frames[idx].freeOrder = -1
	return idx
}

// removeFree splices idx out of free list order; idx must currently be
// the list's head or reachable from it (buddies are always adjacent in
// these lists given how coalescing pushes them, but we still need a
// real unlink since idx is rarely the head).
func (a *Allocator) removeFree(idx, order int) bool {
	cur := a.freeList[order]
	if cur == idx {
		a.freeList[order] = int(a.next[idx])
		a.frames[idx].freeOrder = -1
		return true
	}
	for cur != -1 {
		nxt := int(a.next[cur])
		if nxt == idx {
			a.next[cur] = a.next[idx]
			a.frames[idx].freeOrder = -1
			return true
		}
		cur = nxt
	}
	return false
}

// Alloc returns a physically contiguous run of 2^order frames aligned
// to that size, per spec §4.1's contract.
func (a *Allocator) Alloc(order int) (defs.Pa_t, defs.Err_t) {
	if order < 0 || order > MaxOrder {
		return 0, defs.EInvalidArgument
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.allocIndex(order)
	if idx == -1 {
		return 0, defs.EOutOfMemory
	}
	a.frames[idx].allocated = true
	a.frames[idx].allocOrder = int8(order)
	return a.idxToAddr(idx), defs.OK
}

// allocIndex implements "take the head of list k; if empty,
// recursively split the smallest larger free block" (spec §4.1).
func (a *Allocator) allocIndex(order int) int {
	if idx := a.popFree(order); idx != -1 {
		return idx
	}
	if order >= MaxOrder {
		return -1
	}
	parent := a.allocIndex(order + 1)
	if parent == -1 {
		return -1
	}
	// split: the lower half becomes this allocation, the upper half
	// (the buddy) goes back onto its order's free list.
	buddy := parent ^ (1 << order)
	a.pushFree(buddy, order)
	return parent
}

// Free returns a run to the allocator, coalescing with its buddy when
// possible (spec §4.1: "coalescing a buddy pair at order k always
// reinserts at order k+1 iff the buddy was free").
func (a *Allocator) Free(addr defs.Pa_t, order int) {
	if order < 0 || order > MaxOrder {
		panic("pmm: bad order")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.addrToIdx(addr)
	if a.debug {
		f := a.frames[idx]
		if !f.allocated || int(f.allocOrder) != order {
			panic("pmm: free of non-exact allocation")
		}
	}
	a.frames[idx].allocated = false
	a.coalesce(idx, order)
}

func (a *Allocator) coalesce(idx, order int) {
	for order < MaxOrder {
		buddy := idx ^ (1 << order)
		if buddy+((1<<order)-1) >= a.nframes {
			break
		}
		if a.frames[buddy].freeOrder != int8(order) {
			break
		}
		if !a.removeFree(buddy, order) {
			break
		}
		if buddy < idx {
			idx = buddy
		}
		order++
	}
	a.pushFree(idx, order)
}

func (a *Allocator) idxToAddr(idx int) defs.Pa_t {
	return a.base + defs.Pa_t(idx*defs.PGSIZE)
}

func (a *Allocator) addrToIdx(addr defs.Pa_t) int {
	return int((addr - a.base) / defs.PGSIZE)
}

// Stats reports the allocator's current bookkeeping (spec §4.1).
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Stats{Total: a.nframes}
	for order, head := range a.freeList {
		for idx := head; idx != -1; idx = int(a.next[idx]) {
			s.Free += 1 << order
		}
	}
	s.Allocated = s.Total - s.Free
	return s
}
