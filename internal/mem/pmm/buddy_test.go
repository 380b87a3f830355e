package pmm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"kpio/internal/defs"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	a := New(0x100000, 16)
	before := a.Stats()
	require.Equal(t, 16, before.Free)

	addr, err := a.Alloc(0)
	require.Equal(t, defs.OK, err)
	require.Equal(t, 15, a.Stats().Free)

	a.Free(addr, 0)
	after := a.Stats()
	require.Equal(t, before, after)
}

func TestAllocAlignment(t *testing.T) {
	a := New(0, 1024)
	addr, err := a.Alloc(3) // 8 frames
	require.Equal(t, defs.OK, err)
	require.Zero(t, int(addr)%(8*defs.PGSIZE), "order-3 allocation must be 8-frame aligned")
}

func TestAllocExhaustion(t *testing.T) {
	a := New(0, 4)
	_, err := a.Alloc(2) // whole region
	require.Equal(t, defs.OK, err)
	_, err = a.Alloc(0)
	require.Equal(t, defs.EOutOfMemory, err)
}

func TestFreeNonExactAllocationPanics(t *testing.T) {
	a := New(0, 4)
	addr, err := a.Alloc(1)
	require.Equal(t, defs.OK, err)
	require.Panics(t, func() { a.Free(addr, 0) })
}

func TestCoalesceProducesMaximalBlock(t *testing.T) {
	a := New(0, 16)
	// Allocate every order-0 frame, then free them all back; the
	// allocator must return to one order-4 free block (spec §4.1).
	addrs := make([]defs.Pa_t, 16)
	for i := range addrs {
		addr, err := a.Alloc(0)
		require.Equal(t, defs.OK, err)
		addrs[i] = addr
	}
	_, err := a.Alloc(0)
	require.Equal(t, defs.EOutOfMemory, err)

	for _, addr := range addrs {
		a.Free(addr, 0)
	}
	require.Equal(t, -1, a.freeList[0])
	require.NotEqual(t, -1, a.freeList[4])
}

func TestMaxOrderBoundary(t *testing.T) {
	nframes := 1 << (MaxOrder + 1)
	a := New(0, nframes)
	_, err := a.Alloc(MaxOrder)
	require.Equal(t, defs.OK, err)
	_, err = a.Alloc(MaxOrder)
	require.Equal(t, defs.OK, err, "second max-order block should still fit in a 2x-sized region")
	_, err = a.Alloc(MaxOrder)
	require.Equal(t, defs.EOutOfMemory, err, "one allocation beyond exhaustion must fail")
}
