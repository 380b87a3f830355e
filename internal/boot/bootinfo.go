// Package boot decodes the UEFI handoff structure (spec §6 "Boot
// handoff"), parses the ACPI tables it points at to locate the LAPIC
// and enumerate logical CPUs (spec §6 "ACPI", supplemented per
// SPEC_FULL.md §12.1), parses the kernel command line, and runs the
// boot-time struct-size self-check before any task is scheduled
// (SPEC_FULL.md §12.2).
package boot

import "kpio/internal/defs"

// MemoryType tags a UEFI memory descriptor's kind (spec §9's "tagged
// variants" list names MemoryType explicitly), mirroring the EFI spec's
// own EFI_MEMORY_TYPE enum values.
type MemoryType uint32

const (
	EfiReservedMemoryType MemoryType = iota
	EfiLoaderCode
	EfiLoaderData
	EfiBootServicesCode
	EfiBootServicesData
	EfiRuntimeServicesCode
	EfiRuntimeServicesData
	EfiConventionalMemory
	EfiUnusableMemory
	EfiACPIReclaimMemory
	EfiACPIMemoryNVS
	EfiMemoryMappedIO
	EfiMemoryMappedIOPortSpace
	EfiPalCode
)

// MemDesc is one entry of the UEFI memory map (spec §6: "array of
// descriptors, each with type, physical start, page count,
// attribute").
type MemDesc struct {
	Type      MemoryType
	PhysStart defs.Pa_t
	PageCount uint64
	Attribute uint64
}

// Framebuffer is the UEFI GOP framebuffer descriptor BootInfo carries
// (spec §6), consumed by the compositor this kernel treats as an
// external collaborator.
type Framebuffer struct {
	PhysBase          defs.Pa_t
	Width, Height     uint32
	PixelsPerScanline uint32
	Format            uint32
}

// ImageRange is a physical [Start, End) half-open range.
type ImageRange struct {
	Start, End defs.Pa_t
}

// Initramfs is the physical range and size of the initramfs image
// the UEFI loader placed in memory.
type Initramfs struct {
	Start defs.Pa_t
	Size  uint64
}

// Info is the decoded BootInfo handoff structure (spec §6: "A UEFI
// loader jumps into the kernel entry point with a pointer to a
// BootInfo struct"). The kernel takes over the page tables from this
// point on and never calls back into UEFI boot services.
type Info struct {
	MemoryMap   []MemDesc
	Framebuffer Framebuffer
	AcpiRSDP    defs.Pa_t
	KernelImage ImageRange
	Initramfs   Initramfs
}

// UsableFrames reports every EfiConventionalMemory range, the only
// descriptor kind C1's frame allocator may hand out (everything else
// is reserved, firmware-owned, or already carries kernel/initramfs
// data it must not overwrite).
func (i *Info) UsableFrames() []MemDesc {
	var out []MemDesc
	for _, d := range i.MemoryMap {
		if d.Type == EfiConventionalMemory {
			out = append(out, d)
		}
	}
	return out
}
