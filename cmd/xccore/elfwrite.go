package main

// Minimal ELF64 executable writer for Linux/x86-64, adapted from the
// core's own conclude/encode output (a flat code blob plus an entry
// offset) down to the single-segment case: one PT_LOAD RWX segment
// holding .text, no rodata/data/symtab since the core never emits
// string or global-variable references (spec.md's [MODULE]s never
// produce any).
const (
	elfHeaderSize = 64
	phdrSize      = 56
	baseAddr      = uint64(0x400000)
)

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// buildELF64 wraps code in a minimal ET_EXEC ELF64 image whose entry
// point is textVAddr + entryOffset (the offset of the runtime
// trampoline, which conclude places after every function's blocks,
// per SPEC_FULL.md's "runtime trampoline" component).
func buildELF64(code []byte, entryOffset int) []byte {
	headerTotal := elfHeaderSize + phdrSize
	textOffset := (headerTotal + 15) &^ 15
	totalSize := textOffset + len(code)

	textVAddr := baseAddr + uint64(textOffset)
	entryAddr := textVAddr + uint64(entryOffset)

	elf := make([]byte, totalSize)

	elf[0] = 0x7f
	elf[1] = 'E'
	elf[2] = 'L'
	elf[3] = 'F'
	elf[4] = 2 // ELFCLASS64
	elf[5] = 1 // ELFDATA2LSB
	elf[6] = 1 // EV_CURRENT
	elf[7] = 0 // ELFOSABI_NONE
	putU16(elf[16:], 2)                     // e_type: ET_EXEC
	putU16(elf[18:], 62)                    // e_machine: EM_X86_64
	putU32(elf[20:], 1)                     // e_version
	putU64(elf[24:], entryAddr)              // e_entry
	putU64(elf[32:], uint64(elfHeaderSize))  // e_phoff
	putU16(elf[52:], uint16(elfHeaderSize))  // e_ehsize
	putU16(elf[54:], uint16(phdrSize))       // e_phentsize
	putU16(elf[56:], 1)                      // e_phnum

	phdr := elf[elfHeaderSize:]
	putU32(phdr[0:], 1)                 // p_type: PT_LOAD
	putU32(phdr[4:], 7)                 // p_flags: PF_R|PF_W|PF_X
	putU64(phdr[8:], 0)                 // p_offset
	putU64(phdr[16:], baseAddr)         // p_vaddr
	putU64(phdr[24:], baseAddr)         // p_paddr
	putU64(phdr[32:], uint64(totalSize)) // p_filesz
	putU64(phdr[40:], uint64(totalSize)) // p_memsz
	putU64(phdr[48:], 0x1000)           // p_align

	copy(elf[textOffset:], code)
	return elf
}

// extractText returns the .text bytes from an image buildELF64
// produced, recomputing the same fixed header layout rather than
// walking section headers (this writer emits none).
func extractText(elf []byte) []byte {
	textOffset := (elfHeaderSize + phdrSize + 15) &^ 15
	if textOffset > len(elf) {
		return nil
	}
	return elf[textOffset:]
}
