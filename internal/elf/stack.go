package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"kpio/internal/defs"
	"kpio/internal/mem/vmm"
)

// musl's required auxv types (spec "ELF contract": "AT_* auxv entries
// required by musl ... are provided on the initial stack").
const (
	atNull   = 0
	atPhdr   = 3
	atPhent  = 4
	atPhnum  = 5
	atPagesz = 6
	atBase   = 7
	atEntry  = 9
	atSecure = 23
	atRandom = 25
)

// StackTop is the first address above the initial user stack, chosen
// well clear of the mmap bump region (internal/proc's mmapBase)
// so the two never collide.
const StackTop = defs.Va_t(0x0000_7fff_ffff_f000)

const stackSize = 8 * 1024 * 1024

// BuildStack maps the initial user stack and writes argv/envp/auxv in
// Linux ABI layout (spec: "writes the initial stack with
// argv/envp/auxv"), returning the RSP execve hands to the router.
func BuildStack(as *vmm.AddressSpace, image []byte, argv, envp []string) (defs.Va_t, defs.Err_t) {
	f, ferr := elf.NewFile(bytes.NewReader(image))
	if ferr != nil {
		return 0, defs.EInvalidArgument
	}

	bottom := StackTop - defs.Va_t(stackSize)
	as.AddVMA(&vmm.VMA{Start: bottom, End: StackTop, Perms: defs.PTE_U | defs.PTE_W | defs.PTE_NX, Backing: vmm.BackingAnon})

	var strs bytes.Buffer
	writeStr := func(s string) defs.Va_t {
		off := strs.Len()
		strs.WriteString(s)
		strs.WriteByte(0)
		return defs.Va_t(off) // patched to an absolute address below
	}

	argvOff := make([]defs.Va_t, len(argv))
	for i, s := range argv {
		argvOff[i] = writeStr(s)
	}
	envpOff := make([]defs.Va_t, len(envp))
	for i, s := range envp {
		envpOff[i] = writeStr(s)
	}
	randomOff := defs.Va_t(strs.Len())
	for i := 0; i < 16; i++ {
		strs.WriteByte(byte(i * 0x9e))
	}

	stringsLen := strs.Len()
	stringsAddr := alignDown(StackTop-defs.Va_t(stringsLen), 16)

	// first PT_LOAD's (Vaddr - Off) gives the load bias; phOff/phEntSize/
	// phNum aren't exposed on debug/elf.File, so read them straight out
	// of the Elf64_Ehdr the ABI fixes at offsets 32/54/56 — valid
	// whenever the program headers fall inside that first segment (true
	// for every normally linked static binary).
	var bias defs.Va_t
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			bias = defs.Va_t(p.Vaddr) - defs.Va_t(p.Off)
			break
		}
	}
	phOff := binary.LittleEndian.Uint64(image[32:40])
	phEntSize := binary.LittleEndian.Uint16(image[54:56])
	phNum := binary.LittleEndian.Uint16(image[56:58])

	auxv := []struct{ typ, val uint64 }{
		{atPhdr, uint64(bias) + phOff},
		{atPhent, uint64(phEntSize)},
		{atPhnum, uint64(phNum)},
		{atPagesz, uint64(defs.PGSIZE)},
		{atBase, 0},
		{atEntry, f.Entry},
		{atSecure, 0},
		{atRandom, uint64(stringsAddr + randomOff)},
		{atNull, 0},
	}

	var vec bytes.Buffer
	putU64 := func(v uint64) { binary.Write(&vec, binary.LittleEndian, v) }

	putU64(uint64(len(argv)))
	for _, off := range argvOff {
		putU64(uint64(stringsAddr + off))
	}
	putU64(0)
	for _, off := range envpOff {
		putU64(uint64(stringsAddr + off))
	}
	putU64(0)
	for _, a := range auxv {
		putU64(a.typ)
		putU64(a.val)
	}

	vecAddr := alignDown(stringsAddr-defs.Va_t(vec.Len()), 16)

	if err := as.CopyOut(stringsAddr, strs.Bytes()); err != defs.OK {
		return 0, err
	}
	if err := as.CopyOut(vecAddr, vec.Bytes()); err != defs.OK {
		return 0, err
	}
	return vecAddr, defs.OK
}

func alignDown(v defs.Va_t, n uintptr) defs.Va_t {
	return defs.Va_t(uintptr(v) &^ (n - 1))
}
