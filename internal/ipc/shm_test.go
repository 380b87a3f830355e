package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"kpio/internal/defs"
	"kpio/internal/mem/pmm"
	"kpio/internal/mem/vmm"
)

func newAS(t *testing.T, frames *pmm.Allocator, phys *vmm.PhysMem) *vmm.AddressSpace {
	as, err := vmm.New(frames, phys)
	require.Equal(t, defs.OK, err)
	return as
}

func TestShmCreateAllocatesRequestedPages(t *testing.T) {
	frames := pmm.New(0, 64)
	r, err := ShmCreate(frames, 4)
	require.Equal(t, defs.OK, err)
	require.Equal(t, 4, r.Pages())
}

func TestShmCreateRejectsNonPositivePageCount(t *testing.T) {
	frames := pmm.New(0, 64)
	_, err := ShmCreate(frames, 0)
	require.Equal(t, defs.EInvalidArgument, err)
}

func TestShmMapInstallsUserWritableMappings(t *testing.T) {
	frames := pmm.New(0, 64)
	phys := vmm.NewPhysMem()
	as := newAS(t, frames, phys)

	r, err := ShmCreate(frames, 2)
	require.Equal(t, defs.OK, err)

	const base = defs.Va_t(0x4000_0000)
	require.Equal(t, defs.OK, ShmMap(r, as, base))

	pa, err := as.Unmap(base)
	require.Equal(t, defs.OK, err, "ShmMap must have installed a present mapping at base")
	require.Equal(t, r.pages[0], pa)
}

func TestShmUnmapDropsRefcountAndFreesFramesAtZero(t *testing.T) {
	frames := pmm.New(0, 64)
	phys := vmm.NewPhysMem()
	as := newAS(t, frames, phys)

	r, _ := ShmCreate(frames, 2)
	before := frames.Stats().Free

	const base = defs.Va_t(0x4000_0000)
	require.Equal(t, defs.OK, ShmMap(r, as, base))

	require.Equal(t, defs.OK, ShmUnmap(r, as, base))
	after := frames.Stats().Free
	require.Equal(t, before, after, "frames must return to the allocator once the last mapping drops")
}

func TestShmUnmapOfUnknownMappingFails(t *testing.T) {
	frames := pmm.New(0, 64)
	phys := vmm.NewPhysMem()
	as := newAS(t, frames, phys)

	r, _ := ShmCreate(frames, 1)
	require.Equal(t, defs.EInvalidArgument, ShmUnmap(r, as, defs.Va_t(0x1000)))
}

func TestMessageWithShmHandleIncrementsRefcount(t *testing.T) {
	frames := pmm.New(0, 64)
	r, _ := ShmCreate(frames, 1)
	c := NewChannel(1)

	require.Equal(t, defs.OK, c.Send(1, Message{Shm: r.Handle()}, nil))
	require.Equal(t, int32(1), r.refs)
}
