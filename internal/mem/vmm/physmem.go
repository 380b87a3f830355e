package vmm

import (
	"sync"

	"kpio/internal/defs"
)

// PhysMem is the direct physical-map window spec §4.2 names ("direct
// physical-map window for translating physical addresses"): it lets
// software holding a Pa_t read or write the frame's bytes, the way the
// teacher's mem.Physmem.Dmap translates a physical address into a
// byte slice without a page-table walk.
type PhysMem struct {
	mu    sync.Mutex
	pages map[defs.Pa_t]*[defs.PGSIZE]byte
	zero  defs.Pa_t
	hasZ  bool
}

func NewPhysMem() *PhysMem {
	return &PhysMem{pages: make(map[defs.Pa_t]*[defs.PGSIZE]byte)}
}

// Dmap returns the byte array backing pa, creating a zeroed one if
// this is the first reference (the frame was just carved out of C1
// but has no simulated contents yet).
func (m *PhysMem) Dmap(pa defs.Pa_t) *[defs.PGSIZE]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[pa]
	if !ok {
		p = &[defs.PGSIZE]byte{}
		m.pages[pa] = p
	}
	return p
}

// Forget drops a frame's simulated contents once it has been returned
// to C1, so a later reuse of the same physical address starts zeroed.
func (m *PhysMem) Forget(pa defs.Pa_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, pa)
}

// ZeroFrame lazily allocates the single shared read-only zero page
// demand-zero anonymous mappings fault in, mirroring mem.Zeropg /
// mem.P_zeropg.
func (m *PhysMem) ZeroFrame(alloc func() defs.Pa_t) defs.Pa_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasZ {
		m.zero = alloc()
		m.hasZ = true
	}
	return m.zero
}
