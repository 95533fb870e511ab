// Package elf implements the minimal ELF32 loader named in §6:
// "elf32_load(file) reads the ELF header, iterates program headers, and for
// each PT_LOAD copies p_filesz bytes from the file image to p_vaddr,
// zero-fills p_memsz - p_filesz, and returns the entry point." It is built
// on the standard library's debug/elf decoder rather than a hand-rolled
// header parser, since no example repo in the retrieval pack ships its own
// ELF reader and debug/elf is the canonical one (see DESIGN.md).
package elf

import (
	"bytes"
	"debug/elf"
	"io"

	"kmicro/kernel"
)

// Segment is one PT_LOAD program header, already split into its file-backed
// bytes and the zero-filled tail.
type Segment struct {
	// Vaddr is the virtual address the segment must be copied to.
	Vaddr uintptr

	// Data holds the p_filesz bytes read from the image.
	Data []byte

	// MemSize is p_memsz; bytes beyond len(Data) up to MemSize must be
	// zero-filled by the caller (§6: "zero-fills p_memsz - p_filesz").
	MemSize int
}

// Image is the result of a successful Load: the entry point and the
// ordered list of loadable segments.
type Image struct {
	Entry    uintptr
	Segments []Segment
}

var (
	errNotELF32     = &kernel.Error{Module: "elf", Message: "not a 32-bit ELF image"}
	errMalformed    = &kernel.Error{Module: "elf", Message: "malformed ELF image"}
	errNoLoadable   = &kernel.Error{Module: "elf", Message: "image has no PT_LOAD segments"}
)

// Load parses the raw bytes of an ELF32 executable and returns its loadable
// segments and entry point (§6 elf32_load).
func Load(raw []byte) (*Image, *kernel.Error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, errMalformed
	}

	if f.Class != elf.ELFCLASS32 {
		return nil, errNotELF32
	}

	img := &Image{Entry: uintptr(f.Entry)}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, prog.Filesz)
		if _, rerr := io.ReadFull(prog.Open(), data); rerr != nil && prog.Filesz > 0 {
			return nil, errMalformed
		}

		img.Segments = append(img.Segments, Segment{
			Vaddr:   uintptr(prog.Vaddr),
			Data:    data,
			MemSize: int(prog.Memsz),
		})
	}

	if len(img.Segments) == 0 {
		return nil, errNoLoadable
	}

	return img, nil
}
