// Package elf loads a static x86_64 ELF64 image into a fresh address
// space and builds the Linux-ABI initial stack execve hands off to
// (spec "ELF contract"). Grounded on gokvm's LoadLinux
// (other_examples/.../gokvm__machine-machine.go.go): same debug/elf
// reader (`elf.NewFile`), same "walk Progs, skip anything but
// PT_LOAD, copy Filesz bytes at Paddr/Vaddr" loop — adapted here to
// write through the kernel's own address space instead of a flat
// guest-memory byte slice, and extended with W^X enforcement and
// musl's auxv contract, neither of which a guest-kernel loader needs.
package elf

import (
	"bytes"
	"debug/elf"
	"io"

	"kpio/internal/defs"
	"kpio/internal/mem/vmm"
)

// Loader implements proc.Loader and syscall.Loader.
type Loader struct{}

func New() *Loader { return &Loader{} }

func segPerms(flags elf.ProgFlag) uintptr {
	perms := defs.PTE_U
	if flags&elf.PF_W != 0 {
		perms |= defs.PTE_W
	}
	if flags&elf.PF_X == 0 {
		perms |= defs.PTE_NX
	}
	return perms
}

func pageFloor(v uint64) defs.Va_t { return defs.Va_t(v &^ uint64(defs.PGOFFSET)) }
func pageCeil(v uint64) defs.Va_t {
	return defs.Va_t((v + uint64(defs.PGOFFSET)) &^ uint64(defs.PGOFFSET))
}

// Load maps every PT_LOAD segment of a static ELF64 image into as,
// enforcing W^X (spec: "enforces W^X on PT_LOAD flags" — a segment
// that is both writable and executable is rejected rather than
// silently downgraded), and returns the entry point.
func (l *Loader) Load(as *vmm.AddressSpace, image []byte) (defs.Va_t, defs.Err_t) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return 0, defs.EInvalidArgument
	}
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		return 0, defs.EInvalidArgument
	}

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if p.Flags&elf.PF_W != 0 && p.Flags&elf.PF_X != 0 {
			return 0, defs.EInvalidArgument
		}

		start := pageFloor(p.Vaddr)
		end := pageCeil(p.Vaddr + p.Memsz)
		finalPerms := segPerms(p.Flags)
		// map writable first so CopyOut can populate file contents even
		// for a read-only-at-runtime segment (e.g. .rodata, .text); the
		// real W and NX bits are restored below once the data is in.
		as.AddVMA(&vmm.VMA{Start: start, End: end, Perms: finalPerms | defs.PTE_W, Backing: vmm.BackingFile})

		data := make([]byte, p.Filesz)
		if _, rerr := p.ReadAt(data, 0); rerr != nil && rerr != io.EOF {
			return 0, defs.EInvalidArgument
		}
		if len(data) > 0 {
			if cerr := as.CopyOut(defs.Va_t(p.Vaddr), data); cerr != defs.OK {
				return 0, cerr
			}
		}
		if cerr := as.UpdateProtection(start, end, finalPerms); cerr != defs.OK {
			return 0, cerr
		}
	}

	return defs.Va_t(f.Entry), defs.OK
}
