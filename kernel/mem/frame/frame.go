// Package frame implements the bitmap physical-frame allocator (§4.5): one
// bit per physical page frame, first-fit search for allocation, boot-time
// booking of the kernel image and kernel pool ranges.
package frame

import (
	"kmicro/kernel"
	"kmicro/kernel/mem"
	"kmicro/kernel/sync"
)

const wordBits = mem.WordBits

var (
	bitmap [mem.NumFrames / wordBits]uint64
	lock   sync.Spinlock

	booted bool

	errInvalidFrame = &kernel.Error{Module: "frame", Message: "invalid frame number"}
	errDoubleFree   = &kernel.Error{Module: "frame", Message: "frame already free"}
)

func wordIndex(f mem.Frame) (word int, bit uint) {
	return int(f) / wordBits, uint(f) % wordBits
}

func testBit(f mem.Frame) bool {
	w, b := wordIndex(f)
	return bitmap[w]&(1<<b) != 0
}

func setBit(f mem.Frame) {
	w, b := wordIndex(f)
	bitmap[w] |= 1 << b
}

func clearBit(f mem.Frame) {
	w, b := wordIndex(f)
	bitmap[w] &^= 1 << b
}

// book marks frame as allocated without checking whether it was already
// allocated; used only by Init to reserve boot ranges.
func book(f mem.Frame) {
	if uintptr(f) < mem.NumFrames {
		setBit(f)
	}
}

// Init books the frames covering [mem.KernelBasePhys, mem.KernelEndPhys) and
// [mem.KpoolBasePhys, mem.KpoolEndPhys) as permanently allocated, then
// registers Alloc as the package-wide frame allocator behind mem.AllocFrame,
// which kernel/vmem uses (§4.5).
func Init() {
	for addr := uintptr(mem.KernelBasePhys); addr < mem.KernelEndPhys; addr += uintptr(mem.PageSize) {
		book(mem.FrameFromAddress(addr))
	}
	for addr := uintptr(mem.KpoolBasePhys); addr < mem.KpoolEndPhys; addr += uintptr(mem.PageSize) {
		book(mem.FrameFromAddress(addr))
	}

	booted = true
	mem.SetFrameAllocator(Alloc)
}

// Alloc reserves and returns the first free frame, or mem.FrameNull if none
// remain (§8 testable properties 1, 2).
func Alloc() (mem.Frame, *kernel.Error) {
	lock.Acquire()
	defer lock.Release()

	for w := range bitmap {
		if bitmap[w] == ^uint64(0) {
			continue
		}
		for b := uint(0); b < wordBits; b++ {
			if bitmap[w]&(1<<b) == 0 {
				f := mem.Frame(w*wordBits + int(b))
				bitmap[w] |= 1 << b
				return f, nil
			}
		}
	}

	return mem.FrameNull, nil
}

// Free releases f, returning errInvalidFrame if f is out of range and
// errDoubleFree if f was not allocated (§8 frame lifecycle scenario).
func Free(f mem.Frame) *kernel.Error {
	if !f.Valid() || uintptr(f) >= mem.NumFrames {
		return errInvalidFrame
	}

	lock.Acquire()
	defer lock.Release()

	if !testBit(f) {
		return errDoubleFree
	}
	clearBit(f)
	return nil
}

// FrameNumToID and FrameIDToNum implement the round-trip translation named
// in §8 testable property 3; on this port a frame number already is its id,
// but the indirection documents the contract for ports where the two
// diverge (e.g. a per-NUMA-node frame space).
func FrameNumToID(f mem.Frame) uint64 { return uint64(f) }

// FrameIDToNum is the inverse of FrameNumToID.
func FrameIDToNum(id uint64) mem.Frame { return mem.Frame(id) }
