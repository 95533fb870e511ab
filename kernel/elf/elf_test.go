package elf

import (
	"bytes"
	"debug/elf"
	"testing"
)

// buildImage assembles a minimal valid little-endian ELF32 executable with
// a single PT_LOAD segment, for use as fixture data across the tests below.
func buildImage(t *testing.T, vaddr uint32, fileBytes []byte, memSize uint32, entry uint32) []byte {
	t.Helper()

	const ehdrSize = 52
	const phdrSize = 32

	buf := make([]byte, ehdrSize+phdrSize+len(fileBytes))

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	le := func(off int, v uint32) { putLE32(buf, off, v) }
	putLE16(buf, 16, uint16(elf.ET_EXEC))
	putLE16(buf, 18, uint16(elf.EM_386))
	le(20, 1) // e_version
	le(24, entry)
	le(28, ehdrSize)          // e_phoff
	putLE16(buf, 40, ehdrSize) // e_ehsize
	putLE16(buf, 42, phdrSize) // e_phentsize
	putLE16(buf, 44, 1)        // e_phnum

	phOff := ehdrSize
	le(phOff+0, uint32(elf.PT_LOAD))
	le(phOff+4, ehdrSize+phdrSize) // p_offset
	le(phOff+8, vaddr)             // p_vaddr
	le(phOff+12, vaddr)            // p_paddr
	le(phOff+16, uint32(len(fileBytes)))
	le(phOff+20, memSize)
	le(phOff+24, 5) // p_flags: R+X
	le(phOff+28, 4) // p_align

	copy(buf[ehdrSize+phdrSize:], fileBytes)
	return buf
}

func putLE32(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

func putLE16(buf []byte, off int, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}

func TestLoadReturnsEntryAndSegment(t *testing.T) {
	raw := buildImage(t, 0x80000000, []byte("hello"), 16, 0x80000000)

	img, err := Load(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Entry != 0x80000000 {
		t.Fatalf("expected entry 0x80000000, got %#x", img.Entry)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(img.Segments))
	}

	seg := img.Segments[0]
	if seg.Vaddr != 0x80000000 {
		t.Fatalf("expected vaddr 0x80000000, got %#x", seg.Vaddr)
	}
	if !bytes.Equal(seg.Data, []byte("hello")) {
		t.Fatalf("expected file data %q, got %q", "hello", seg.Data)
	}
	if seg.MemSize != 16 {
		t.Fatalf("expected memsz 16, got %d", seg.MemSize)
	}
}

func TestLoadRejectsNonELF(t *testing.T) {
	if _, err := Load([]byte("not an elf file")); err == nil {
		t.Fatal("expected an error for non-ELF input")
	}
}

func TestLoadRejectsImageWithNoLoadSegments(t *testing.T) {
	raw := buildImage(t, 0x80000000, nil, 0, 0x80000000)
	// Zero out the single program header's type so nothing is PT_LOAD.
	putLE32(raw, 52, uint32(elf.PT_NULL))

	if _, err := Load(raw); err == nil {
		t.Fatal("expected an error for an image with no loadable segments")
	}
}
