// Package mmu implements the architecture-neutral page-table-entry bit
// algebra named in §3 (PageTableEntry / PageDirectoryEntry): opaque
// fixed-size records with capability bits and a frame-number field, shared
// by page-table and page-directory entries alike (§4.1). It is grounded on
// the teacher's pageTableEntry type in kernel/mm/vmm/pdt.go, split here into
// the PTE/PDE-symmetric contract the spec names explicitly.
package mmu

import "kmicro/kernel/mem"

// Flag identifies one of the capability bits named in §3: present,
// writable, user, accessed, dirty, executable. A cleared Executable bit
// means "no-execute" where the architecture supports it; ports that lack
// per-page execute protection simply never clear it.
type Flag uintptr

const (
	FlagPresent Flag = 1 << iota
	FlagWritable
	FlagUser
	FlagAccessed
	FlagDirty
	FlagExecutable

	flagBits = 6
)

// frameShift places the frame-number field above the flag bits.
const frameShift = flagBits

// frameBits is the number of bits available to the frame-number field,
// derived from §6's VaddrBits - PageShift.
const frameBits = mem.VaddrBits - mem.PageShift

// frameMask covers every bit an in-range frame number may set.
const frameMask = (uintptr(1) << frameBits) - 1

// Entry is the shared representation for both a PageTableEntry and a
// PageDirectoryEntry (§3). Architectures that need a richer on-the-wire
// format define their own encode/decode pair over the same Entry value;
// this port stores flags and frame number directly.
type Entry uintptr

// Clear resets *e to the zero entry. Per §4.1 ("pte_clear(null) fails with
// a sentinel"), calling Clear through a nil pointer is rejected instead of
// faulting; callers that hold a valid pointer never see an error.
func Clear(e *Entry) bool {
	if e == nil {
		return false
	}
	*e = 0
	return true
}

// HasFlags reports whether every bit in flags is set on e.
func (e Entry) HasFlags(flags Flag) bool {
	return uintptr(e)&uintptr(flags) == uintptr(flags)
}

// SetFlags sets every bit in flags on *e.
func (e *Entry) SetFlags(flags Flag) {
	*e = Entry(uintptr(*e) | uintptr(flags))
}

// ClearFlags clears every bit in flags on *e.
func (e *Entry) ClearFlags(flags Flag) {
	*e = Entry(uintptr(*e) &^ uintptr(flags))
}

// PresentSet/IsPresent, UserSet/IsUser and WriteSet/IsWrite are the named
// per-bit accessors from §3; they are thin wrappers over
// {Set,Has}Flags so call sites can spell out the exact contract name.
func (e *Entry) PresentSet(v bool) { setBit(e, FlagPresent, v) }
func (e Entry) IsPresent() bool    { return e.HasFlags(FlagPresent) }

func (e *Entry) UserSet(v bool) { setBit(e, FlagUser, v) }
func (e Entry) IsUser() bool    { return e.HasFlags(FlagUser) }

func (e *Entry) WriteSet(v bool) { setBit(e, FlagWritable, v) }
func (e Entry) IsWrite() bool    { return e.HasFlags(FlagWritable) }

func (e *Entry) AccessedSet(v bool) { setBit(e, FlagAccessed, v) }
func (e Entry) IsAccessed() bool    { return e.HasFlags(FlagAccessed) }

func (e *Entry) DirtySet(v bool) { setBit(e, FlagDirty, v) }
func (e Entry) IsDirty() bool    { return e.HasFlags(FlagDirty) }

// ExecSet/IsExec implement the "executable-where-applicable" bit from §3.
func (e *Entry) ExecSet(v bool) { setBit(e, FlagExecutable, v) }
func (e Entry) IsExec() bool    { return e.HasFlags(FlagExecutable) }

func setBit(e *Entry, f Flag, v bool) {
	if v {
		e.SetFlags(f)
	} else {
		e.ClearFlags(f)
	}
}

// FrameSet installs frame in the entry's frame-number field, returning
// false and leaving the entry unmodified if frame does not fit in
// VaddrBits-PageShift bits (§4.1: "frame numbers exceeding VADDR_BIT -
// PAGE_SHIFT fail").
func (e *Entry) FrameSet(frame mem.Frame) bool {
	if uintptr(frame) > frameMask {
		return false
	}
	*e = Entry((uintptr(*e) &^ (frameMask << frameShift)) | (uintptr(frame) << frameShift))
	return true
}

// FrameGet returns the frame number currently stored in the entry.
func (e Entry) FrameGet() mem.Frame {
	return mem.Frame((uintptr(e) >> frameShift) & frameMask)
}

// PTE names an Entry used as a leaf page-table entry.
type PTE = Entry

// PDE names an Entry used as a page-directory entry referencing a page
// table's frame.
type PDE = Entry

// PageWalk performs the linear search named in §4.1 ("mmu_page_walk"): it
// scans every present leaf entry in pgdir looking for one whose frame
// contains paddr, returning the corresponding virtual address (offset
// preserved) or ok=false if none match. leafOf resolves a PDE to the slice
// of PTEs it covers and vaddrOf reconstructs the virtual address of entry i
// of page directory slot d.
func PageWalk(pgdir []PDE, leafOf func(d int) []PTE, vaddrOf func(d, i int) uintptr, paddr uintptr) (uintptr, bool) {
	targetFrame := mem.FrameFromAddress(paddr)
	offset := paddr - targetFrame.Address()

	for d, pde := range pgdir {
		if !pde.IsPresent() {
			continue
		}
		for i, pte := range leafOf(d) {
			if pte.IsPresent() && pte.FrameGet() == targetFrame {
				return vaddrOf(d, i) + offset, true
			}
		}
	}

	return 0, false
}
