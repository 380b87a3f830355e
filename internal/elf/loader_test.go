package elf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"kpio/internal/defs"
	"kpio/internal/mem/pmm"
	"kpio/internal/mem/vmm"
)

const (
	ptLoad  = 1
	pfX     = 1
	pfW     = 2
	pfR     = 4
	ehSize  = 64
	phSize  = 56
)

// buildMinimalELF assembles a one-segment static ELF64 executable by
// hand: Elf64_Ehdr, one Elf64_Phdr, then the segment's raw bytes, all
// at file offset 0 so a single PT_LOAD covers the header too (the
// layout AT_PHDR's bias computation in stack.go assumes).
func buildMinimalELF(vaddr uint64, data []byte, memsz uint64, flags uint32) []byte {
	total := ehSize + phSize + len(data)
	buf := make([]byte, total)

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EI_VERSION

	le := binary.LittleEndian
	le.PutUint16(buf[16:18], 2)  // ET_EXEC
	le.PutUint16(buf[18:20], 62) // EM_X86_64
	le.PutUint32(buf[20:24], 1)  // e_version
	entry := vaddr + uint64(ehSize+phSize)
	le.PutUint64(buf[24:32], entry)
	le.PutUint64(buf[32:40], ehSize) // e_phoff
	le.PutUint16(buf[52:54], ehSize)
	le.PutUint16(buf[54:56], phSize)
	le.PutUint16(buf[56:58], 1) // e_phnum

	ph := buf[ehSize : ehSize+phSize]
	le.PutUint32(ph[0:4], ptLoad)
	le.PutUint32(ph[4:8], flags)
	le.PutUint64(ph[8:16], 0)      // p_offset
	le.PutUint64(ph[16:24], vaddr) // p_vaddr
	le.PutUint64(ph[24:32], vaddr) // p_paddr
	le.PutUint64(ph[32:40], uint64(ehSize+phSize+len(data)))
	if memsz == 0 {
		memsz = uint64(ehSize + phSize + len(data))
	}
	le.PutUint64(ph[40:48], memsz)
	le.PutUint64(ph[48:56], 0x1000)

	copy(buf[ehSize+phSize:], data)
	return buf
}

func newTestAS(t *testing.T) *vmm.AddressSpace {
	as, err := vmm.New(pmm.New(0, 8192), vmm.NewPhysMem())
	require.Equal(t, defs.OK, err)
	return as
}

func TestLoadMapsSegmentAndReturnsEntry(t *testing.T) {
	as := newTestAS(t)
	payload := []byte{0x90, 0x90, 0xc3} // nop; nop; ret
	image := buildMinimalELF(0x400000, payload, 0, pfR|pfX)

	entry, err := New().Load(as, image)
	require.Equal(t, defs.OK, err)
	require.EqualValues(t, 0x400000+ehSize+phSize, entry)

	var back [3]byte
	require.Equal(t, defs.OK, as.CopyIn(entry, back[:]))
	require.Equal(t, payload, back[:])
}

func TestLoadZeroesBSSPastFilesz(t *testing.T) {
	as := newTestAS(t)
	payload := []byte{1, 2, 3, 4}
	image := buildMinimalELF(0x500000, payload, 0x3000, pfR|pfW)

	_, err := New().Load(as, image)
	require.Equal(t, defs.OK, err)

	tail := defs.Va_t(0x500000 + 0x2000)
	var got [4]byte
	require.Equal(t, defs.OK, as.CopyIn(tail, got[:]))
	require.Equal(t, [4]byte{0, 0, 0, 0}, got)
}

func TestLoadRejectsWriteAndExecuteSegment(t *testing.T) {
	as := newTestAS(t)
	image := buildMinimalELF(0x400000, []byte{0x90}, 0, pfR|pfW|pfX)
	_, err := New().Load(as, image)
	require.Equal(t, defs.EInvalidArgument, err)
}

func TestLoadRejectsNon64BitOrWrongMachine(t *testing.T) {
	as := newTestAS(t)
	image := buildMinimalELF(0x400000, []byte{0x90}, 0, pfR|pfX)
	image[4] = 1 // ELFCLASS32
	_, err := New().Load(as, image)
	require.Equal(t, defs.EInvalidArgument, err)
}
