package boot

import (
	"testing"

	"github.com/stretchr/testify/require"
	"kpio/internal/defs"
	"kpio/internal/mem/vmm"
)

func writePhys(phys *vmm.PhysMem, pa defs.Pa_t, data []byte) {
	for off := 0; off < len(data); {
		cur := pa + defs.Pa_t(off)
		frameBase := defs.Pa_t(uintptr(cur) &^ defs.PGOFFSET)
		pageOff := int(uintptr(cur) & defs.PGOFFSET)
		page := phys.Dmap(frameBase)
		n := copy(page[pageOff:], data[off:])
		off += n
	}
}

func putU32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func putU64(b []byte, off int, v uint64) {
	putU32(b, off, uint32(v))
	putU32(b, off+4, uint32(v>>32))
}

func TestReadRSDPParsesRevision2Fields(t *testing.T) {
	phys := vmm.NewPhysMem()
	buf := make([]byte, 36)
	copy(buf[0:8], "RSD PTR ")
	buf[15] = 2 // revision
	putU32(buf, 16, 0xdead0000)
	putU64(buf, 24, 0x1_0000_2000)
	writePhys(phys, 0x9000, buf)

	r, err := ReadRSDP(phys, 0x9000)
	require.Equal(t, defs.OK, err)
	require.EqualValues(t, 2, r.Revision)
	require.EqualValues(t, 0xdead0000, r.RsdtAddress)
	require.EqualValues(t, 0x1_0000_2000, r.XsdtAddress)
}

func TestReadRSDPRejectsBadSignature(t *testing.T) {
	phys := vmm.NewPhysMem()
	buf := make([]byte, 36)
	copy(buf[0:8], "GARBAGE!")
	writePhys(phys, 0x9000, buf)

	_, err := ReadRSDP(phys, 0x9000)
	require.Equal(t, defs.EInvalidArgument, err)
}

// buildMADT assembles a minimal MADT with the given Local APIC base
// and Processor Local APIC entries (each (apicID, enabled)).
func buildMADT(lapicBase uint32, cpus []CPU) []byte {
	body := make([]byte, madtHeaderLen)
	copy(body[0:4], "APIC")
	putU32(body, 36, lapicBase)
	for _, c := range cpus {
		entry := make([]byte, 8)
		entry[0] = madtEntryLocalAPIC
		entry[1] = 8
		entry[2] = 0 // ACPI processor id, unused
		entry[3] = c.ApicID
		flags := uint32(0)
		if c.Enabled {
			flags = 1
		}
		putU32(entry, 4, flags)
		body = append(body, entry...)
	}
	putU32(body, 4, uint32(len(body)))
	return body
}

func TestParseMADTEnumeratesEnabledCPUsAndLAPICBase(t *testing.T) {
	phys := vmm.NewPhysMem()
	image := buildMADT(0xfee00000, []CPU{
		{ApicID: 0, Enabled: true},
		{ApicID: 1, Enabled: true},
		{ApicID: 2, Enabled: false},
	})
	writePhys(phys, 0xa0000, image)

	m, err := ParseMADT(phys, 0xa0000)
	require.Equal(t, defs.OK, err)
	require.EqualValues(t, 0xfee00000, m.LocalAPICAddress)
	require.Len(t, m.CPUs, 3)
	require.True(t, m.CPUs[0].Enabled)
	require.True(t, m.CPUs[1].Enabled)
	require.False(t, m.CPUs[2].Enabled)
}

func TestParseMADTCrossesPhysMemFrameBoundary(t *testing.T) {
	phys := vmm.NewPhysMem()
	// start the table 16 bytes before a page boundary so the entry
	// list spills into the next simulated frame.
	pa := defs.Pa_t(defs.PGSIZE - 16)
	cpus := make([]CPU, 20)
	for i := range cpus {
		cpus[i] = CPU{ApicID: uint8(i), Enabled: true}
	}
	image := buildMADT(0xfee00000, cpus)
	writePhys(phys, pa, image)

	m, err := ParseMADT(phys, pa)
	require.Equal(t, defs.OK, err)
	require.Len(t, m.CPUs, 20)
	require.EqualValues(t, 19, m.CPUs[19].ApicID)
}

// buildRootTable assembles a minimal RSDT/XSDT: a 36-byte ACPI SDT
// header followed by one pointer-sized entry per table address.
func buildRootTable(entries []defs.Pa_t, wide bool) []byte {
	entrySize := 4
	if wide {
		entrySize = 8
	}
	body := make([]byte, acpiSDTHeaderLen+entrySize*len(entries))
	copy(body[0:4], "RSDT")
	for i, e := range entries {
		off := acpiSDTHeaderLen + i*entrySize
		if wide {
			putU64(body, off, uint64(e))
		} else {
			putU32(body, off, uint32(e))
		}
	}
	putU32(body, 4, uint32(len(body)))
	return body
}

func TestFindTableWalksRSDTFor32BitEntries(t *testing.T) {
	phys := vmm.NewPhysMem()
	writePhys(phys, 0x20000, []byte("FACP"))
	writePhys(phys, 0x21000, []byte("APIC"))
	writePhys(phys, 0x10000, buildRootTable([]defs.Pa_t{0x20000, 0x21000}, false))

	pa, err := FindTable(phys, &RSDP{RsdtAddress: 0x10000}, "APIC")
	require.Equal(t, defs.OK, err)
	require.EqualValues(t, 0x21000, pa)
}

func TestFindTableWalksXSDTWhenRevision2(t *testing.T) {
	phys := vmm.NewPhysMem()
	writePhys(phys, 0x30000, []byte("APIC"))
	writePhys(phys, 0x18000, buildRootTable([]defs.Pa_t{0x30000}, true))

	pa, err := FindTable(phys, &RSDP{Revision: 2, XsdtAddress: 0x18000}, "APIC")
	require.Equal(t, defs.OK, err)
	require.EqualValues(t, 0x30000, pa)
}

func TestFindTableReturnsNotFoundWhenSignatureAbsent(t *testing.T) {
	phys := vmm.NewPhysMem()
	writePhys(phys, 0x20000, []byte("FACP"))
	writePhys(phys, 0x10000, buildRootTable([]defs.Pa_t{0x20000}, false))

	_, err := FindTable(phys, &RSDP{RsdtAddress: 0x10000}, "APIC")
	require.Equal(t, defs.ENotFound, err)
}
