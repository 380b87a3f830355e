// Package kheap is the kernel heap (spec §4.3, C3): slab caches for
// objects from 16 to 2048 bytes, large allocations falling back to a
// pmm-backed allocator. The "pick the smallest size class that fits"
// index arithmetic is grounded on cloudwego-gopkg/cache/mempool's
// poolIndex (a bits.Len-based power-of-two bucket lookup used there to
// pick a sync.Pool bucket; used here to pick a slab size class instead,
// since Ring 0 has no GC-backed sync.Pool to lean on).
package kheap

import (
	"math/bits"
	"sync"
	"unsafe"

	"kpio/internal/defs"
	"kpio/internal/mem/pmm"
)

// sizeClasses are the slab object sizes spec §4.3 names.
var sizeClasses = [...]int{16, 32, 64, 128, 256, 512, 1024, 2048}

const largeThreshold = 2048

// classIndex returns the index into sizeClasses of the smallest class
// that holds sz bytes aligned to align, or -1 if sz belongs in the
// large allocator. Mirrors mempool.poolIndex's bits.Len lookup: round
// the requirement up to the next power of two's class.
func classIndex(sz, align int) int {
	need := sz
	if align > need {
		need = align
	}
	if need > largeThreshold {
		return -1
	}
	if need <= sizeClasses[0] {
		return 0
	}
	l := bits.Len(uint(need - 1))
	for i, c := range sizeClasses {
		if c >= (1 << l) {
			return i
		}
	}
	return len(sizeClasses) - 1
}

// slabState mirrors spec §4.3's "three states (empty/partial/full)".
type slabState int

const (
	stateEmpty slabState = iota
	statePartial
	stateFull
)

// slab is one 4 KiB page carved into same-sized objects, with the
// indices of the unused objects kept in a separate free slice.
type slab struct {
	frame   defs.Pa_t
	backing []byte
	objSize int
	free    []int32 // indices of free objects within this slab
	state   slabState
}

func newSlab(frame defs.Pa_t, backing []byte, objSize int) *slab {
	n := defs.PGSIZE / objSize
	s := &slab{frame: frame, backing: backing, objSize: objSize, state: stateEmpty}
	s.free = make([]int32, n)
	for i := 0; i < n; i++ {
		s.free[i] = int32(i)
	}
	return s
}

func (s *slab) take() (int, bool) {
	if len(s.free) == 0 {
		return -1, false
	}
	i := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	if len(s.free) == 0 {
		s.state = stateFull
	} else {
		s.state = statePartial
	}
	return int(i), true
}

func (s *slab) give(idx int) {
	s.free = append(s.free, int32(idx))
	total := defs.PGSIZE / s.objSize
	if len(s.free) == total {
		s.state = stateEmpty
	} else {
		s.state = statePartial
	}
}

func (s *slab) ptr(idx int) []byte {
	off := idx * s.objSize
	return s.backing[off : off+s.objSize : off+s.objSize]
}

// sizeCache is the per-size-class allocator. Spec §4.3: "The slab
// allocator lock is per-size to reduce contention."
type sizeCache struct {
	mu      sync.Mutex
	objSize int
	partial []*slab
	full    []*slab
	byFrame map[defs.Pa_t]*slab
}

// Heap is the kernel heap: one sizeCache per size class plus a
// pmm-backed large-object path for allocations above 2048 bytes.
type Heap struct {
	frames  *pmm.Allocator
	classes [len(sizeClasses)]*sizeCache
	large   sync.Map // addr -> largeAlloc, for Free to look up large allocations
}

// New creates a kernel heap backed by the given physical frame
// allocator (C1).
func New(frames *pmm.Allocator) *Heap {
	h := &Heap{frames: frames}
	for i, sz := range sizeClasses {
		h.classes[i] = &sizeCache{objSize: sz, byFrame: make(map[defs.Pa_t]*slab)}
	}
	return h
}

// Alloc returns a pointer to a zero-initialized object of at least sz
// bytes aligned to align. Per spec §4.3, kernel-heap allocation never
// returns nil: exhaustion of the underlying physical allocator is a
// fatal kernel condition.
func (h *Heap) Alloc(sz, align int) []byte {
	ci := classIndex(sz, align)
	if ci == -1 {
		return h.allocLarge(sz)
	}
	return h.classes[ci].alloc(h.frames)
}

// Free returns an object previously returned by Alloc.
func (h *Heap) Free(b []byte) {
	sz := cap(b)
	ci := classIndex(sz, 1)
	if ci != -1 {
		h.classes[ci].free(h.frames, b)
		return
	}
	h.freeLarge(b)
}

func (c *sizeCache) alloc(frames *pmm.Allocator) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.partial) == 0 {
		s, err := c.newBackingSlab(frames)
		if err != defs.OK {
			panic("kheap: out of memory (kernel-heap exhaustion is fatal, spec §4.3)")
		}
		c.partial = append(c.partial, s)
	}
	s := c.partial[len(c.partial)-1]
	idx, ok := s.take()
	if !ok {
		panic("kheap: slab bookkeeping corrupt")
	}
	obj := s.ptr(idx)
	for i := range obj {
		obj[i] = 0
	}
	if s.state == stateFull {
		c.partial = c.partial[:len(c.partial)-1]
		c.full = append(c.full, s)
	}
	return obj
}

func (c *sizeCache) newBackingSlab(frames *pmm.Allocator) (*slab, defs.Err_t) {
	addr, err := frames.Alloc(0)
	if err != defs.OK {
		return nil, err
	}
	backing := make([]byte, defs.PGSIZE)
	s := newSlab(addr, backing, c.objSize)
	c.byFrame[addr] = s
	return s, defs.OK
}

func (c *sizeCache) free(frames *pmm.Allocator, obj []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.partial {
		if sameBacking(s.backing, obj) {
			c.returnTo(s, obj)
			return
		}
	}
	for i, s := range c.full {
		if sameBacking(s.backing, obj) {
			c.returnTo(s, obj)
			c.full = append(c.full[:i], c.full[i+1:]...)
			c.partial = append(c.partial, s)
			return
		}
	}
	panic("kheap: free of object not owned by this size class")
}

func (c *sizeCache) returnTo(s *slab, obj []byte) {
	idx := (addrOf(obj) - addrOf(s.backing)) / s.objSize
	s.give(idx)
}

// sameBacking and addrOf compare slice identity via the backing
// array's address, the way Ring-0 code compares pointers directly
// rather than through a handle table.
func sameBacking(backing, obj []byte) bool {
	if len(backing) == 0 || len(obj) == 0 {
		return false
	}
	a, b := addrOf(backing), addrOf(obj)
	return b >= a && b < a+len(backing)
}

func addrOf(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return int(uintptr(unsafe.Pointer(&b[0])))
}

// DebugSizes supplements teacher's sizedump(): reports the object size
// and per-slab object count for each size class (SPEC_FULL.md §12.2).
func (h *Heap) DebugSizes() map[int]int {
	out := make(map[int]int, len(sizeClasses))
	for _, sz := range sizeClasses {
		out[sz] = defs.PGSIZE / sz
	}
	return out
}
