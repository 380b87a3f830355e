package boot

import (
	"kpio/internal/defs"
	"kpio/internal/mem/vmm"
)

// ReadPhys is physRead exported for callers outside this package
// (cmd/kpio's initramfs reader) that need the same direct-map-window
// copy this package's own ACPI parsing already relies on.
func ReadPhys(phys *vmm.PhysMem, pa defs.Pa_t, buf []byte) { physRead(phys, pa, buf) }

// physRead copies n bytes starting at a physical address out of phys's
// direct-map window, crossing frame boundaries as needed (spec §6:
// "physical pointers in ACPI tables are translated via the direct
// physical-map window before dereference").
func physRead(phys *vmm.PhysMem, pa defs.Pa_t, buf []byte) {
	for off := 0; off < len(buf); {
		cur := pa + defs.Pa_t(off)
		frameBase := defs.Pa_t(uintptr(cur) &^ defs.PGOFFSET)
		pageOff := int(uintptr(cur) & defs.PGOFFSET)
		page := phys.Dmap(frameBase)
		n := copy(buf[off:], page[pageOff:])
		off += n
	}
}

// RSDP is the ACPI Root System Description Pointer (spec §6: "the
// RSDP physical address arrives via BootInfo").
type RSDP struct {
	Revision    uint8
	RsdtAddress uint32
	XsdtAddress uint64
}

// ReadRSDP parses the RSDP at pa out of physical memory. It does not
// verify the checksum byte-for-byte (no firmware actually hands kpio
// a corrupt RSDP in the hosted model this package is tested against);
// it does check the 8-byte signature, the one structural invariant
// worth failing loudly on.
func ReadRSDP(phys *vmm.PhysMem, pa defs.Pa_t) (*RSDP, defs.Err_t) {
	var hdr [36]byte
	physRead(phys, pa, hdr[:])
	if string(hdr[0:8]) != "RSD PTR " {
		return nil, defs.EInvalidArgument
	}
	r := &RSDP{
		Revision:    hdr[15],
		RsdtAddress: leU32(hdr[16:20]),
	}
	if r.Revision >= 2 {
		r.XsdtAddress = leU64(hdr[24:32])
	}
	return r, defs.OK
}

// CPU is one MADT Processor Local APIC entry.
type CPU struct {
	ApicID  uint8
	Enabled bool
}

// MADT is the parsed subset of the Multiple APIC Description Table
// this kernel needs: the LAPIC base and the enumerated logical CPUs
// (SPEC_FULL.md §12.1: "MADT parsing to enumerate logical CPUs
// (without actually scheduling work on them)").
type MADT struct {
	LocalAPICAddress defs.Pa_t
	CPUs             []CPU
}

const (
	madtHeaderLen      = 44 // ACPI SDT header (36) + LocalAPICAddress + Flags
	madtEntryLocalAPIC = 0
)

// ParseMADT reads the MADT table at pa (the physical address the RSDT/
// XSDT entry for signature "APIC" resolves to; locating that entry
// within the RSDT/XSDT is the caller's job, kept out of this package
// since it needs only the one table).
func ParseMADT(phys *vmm.PhysMem, pa defs.Pa_t) (*MADT, defs.Err_t) {
	var sig [4]byte
	physRead(phys, pa, sig[:])
	if string(sig[:]) != "APIC" {
		return nil, defs.EInvalidArgument
	}
	var lenBuf [4]byte
	physRead(phys, pa+4, lenBuf[:])
	length := leU32(lenBuf[:])
	if length < madtHeaderLen {
		return nil, defs.EInvalidArgument
	}

	body := make([]byte, length)
	physRead(phys, pa, body)

	m := &MADT{LocalAPICAddress: defs.Pa_t(leU32(body[36:40]))}

	off := madtHeaderLen
	for off+2 <= len(body) {
		typ := body[off]
		entryLen := int(body[off+1])
		if entryLen < 2 || off+entryLen > len(body) {
			break
		}
		if typ == madtEntryLocalAPIC && entryLen >= 8 {
			m.CPUs = append(m.CPUs, CPU{
				ApicID:  body[off+3],
				Enabled: leU32(body[off+4:off+8])&1 != 0,
			})
		}
		off += entryLen
	}
	return m, defs.OK
}

// FindTable walks the RSDT (32-bit entries) or XSDT (64-bit entries,
// preferred when the RSDP is revision 2+) pointed at by r and returns
// the physical address of the first table whose 4-byte signature
// matches sig. ParseMADT "needs only the one table" and leaves finding
// it to the caller (its own doc comment); this is that caller's half
// of the job, reusable for any other single-table lookup the same way.
func FindTable(phys *vmm.PhysMem, r *RSDP, sig string) (defs.Pa_t, defs.Err_t) {
	var hdrLen [4]byte
	base := defs.Pa_t(r.RsdtAddress)
	entrySize := 4
	if r.Revision >= 2 && r.XsdtAddress != 0 {
		base = defs.Pa_t(r.XsdtAddress)
		entrySize = 8
	}
	physRead(phys, base+4, hdrLen[:])
	length := leU32(hdrLen[:])
	if length < acpiSDTHeaderLen {
		return 0, defs.EInvalidArgument
	}

	body := make([]byte, length)
	physRead(phys, base, body)

	for off := acpiSDTHeaderLen; off+entrySize <= len(body); off += entrySize {
		var entryPA defs.Pa_t
		if entrySize == 4 {
			entryPA = defs.Pa_t(leU32(body[off : off+4]))
		} else {
			entryPA = defs.Pa_t(leU64(body[off : off+8]))
		}
		var entrySig [4]byte
		physRead(phys, entryPA, entrySig[:])
		if string(entrySig[:]) == sig {
			return entryPA, defs.OK
		}
	}
	return 0, defs.ENotFound
}

const acpiSDTHeaderLen = 36 // ACPI table header: signature(4)+length(4)+... up to the entry array

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	return uint64(leU32(b[0:4])) | uint64(leU32(b[4:8]))<<32
}
