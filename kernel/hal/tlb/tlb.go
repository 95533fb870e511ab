// Package tlb implements the two TLB management modes named in §4.4:
// software-managed, where a per-core in-memory shadow mirrors every insert
// into hardware, and hardware-managed, where the walk happens automatically
// and writes/invalidates collapse to broadcast-only no-ops. §9's open
// question on shadow scope is resolved here: the shadow is per-core,
// matching the k1b/or1k assumption the spec names.
package tlb

import (
	"kmicro/kernel"
	"kmicro/kernel/mem"
)

// Mode selects which of the two TLB management styles a port advertises.
type Mode int

const (
	// SoftwareManaged keeps an in-memory shadow per core; Write/Inval
	// mirror it into hardware and fail with -EAGAIN on a race.
	SoftwareManaged Mode = iota
	// HardwareManaged lets the MMU walk automatically; Write/Inval are
	// no-ops beyond the invalidation broadcast.
	HardwareManaged
)

// entry is one software-managed shadow slot.
type entry struct {
	valid bool
	vaddr uintptr
	paddr uintptr
	shift uint
	prot  uint8
}

const shadowSize = 64

// shadow is indexed per-core; maxCores bounds the number of cores this port
// supports shadows for.
const maxCores = 16

var (
	mode    Mode = SoftwareManaged
	shadow  [maxCores][shadowSize]entry
	flushFn = func() {}

	errNoMatch  = &kernel.Error{Module: "tlb", Message: "no matching entry"}
	errRace     = &kernel.Error{Module: "tlb", Message: "shadow update raced with a hardware insert"}
	errFullSet  = &kernel.Error{Module: "tlb", Message: "shadow set has no free way"}
	errBadShift = &kernel.Error{Module: "tlb", Message: "invalid page-size shift"}
)

// SetMode selects the TLB management style for this port. Called once at
// boot by the HAL.
func SetMode(m Mode) { mode = m }

// GetMode returns the currently configured mode.
func GetMode() Mode { return mode }

// SetFlushFn installs the hardware TLB-flush primitive (e.g. cpu.FlushTLBEntry
// wired to a full reload). Tests override this to observe flush calls
// without touching real hardware.
func SetFlushFn(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	flushFn = fn
}

func coreShadow(core int) *[shadowSize]entry {
	if core < 0 || core >= maxCores {
		core = 0
	}
	return &shadow[core]
}

// Write installs a vaddr->paddr translation in the shadow for the given
// core and page-size shift (and, in a set-associative implementation, way).
// In HardwareManaged mode this only flushes the stale entry, if any (§4.4
// tlb_write).
func Write(core int, vaddr, paddr uintptr, shift uint, way int, prot uint8) *kernel.Error {
	if shift < mem.PageShift {
		return errBadShift
	}

	if mode == HardwareManaged {
		flushFn()
		return nil
	}

	s := coreShadow(core)
	if way >= 0 {
		if way >= shadowSize {
			return errRace
		}
		if s[way].valid && s[way].vaddr != vaddr {
			return errRace
		}
		s[way] = entry{valid: true, vaddr: vaddr, paddr: paddr, shift: shift, prot: prot}
		flushFn()
		return nil
	}

	for i := range s {
		if !s[i].valid {
			s[i] = entry{valid: true, vaddr: vaddr, paddr: paddr, shift: shift, prot: prot}
			flushFn()
			return nil
		}
	}

	return errFullSet
}

// Inval removes the shadow entry for vaddr at the given shift/way, if
// present, and always issues the hardware invalidation (§4.4 tlb_inval).
func Inval(core int, vaddr uintptr, shift uint, way int) *kernel.Error {
	if mode == HardwareManaged {
		flushFn()
		return nil
	}

	s := coreShadow(core)
	found := false
	for i := range s {
		if s[i].valid && s[i].vaddr == vaddr && (way < 0 || i == way) {
			s[i] = entry{}
			found = true
		}
	}

	flushFn()
	if !found {
		return errNoMatch
	}
	return nil
}

// Flush issues a full TLB flush; available in both modes (§4.4 tlb_flush).
func Flush(core int) {
	if mode == SoftwareManaged {
		*coreShadow(core) = [shadowSize]entry{}
	}
	flushFn()
}

// LookupVaddr returns the physical address mapped for vaddr in the software
// shadow of core, only meaningful in SoftwareManaged mode (§4.4
// tlb_lookup_vaddr).
func LookupVaddr(core int, vaddr uintptr) (uintptr, bool) {
	if mode != SoftwareManaged {
		return 0, false
	}
	s := coreShadow(core)
	for _, e := range s {
		if e.valid && e.vaddr == vaddr {
			return e.paddr, true
		}
	}
	return 0, false
}

// LookupPaddr returns the virtual address mapped to paddr in the software
// shadow of core (§4.4 tlb_lookup_paddr).
func LookupPaddr(core int, paddr uintptr) (uintptr, bool) {
	if mode != SoftwareManaged {
		return 0, false
	}
	s := coreShadow(core)
	for _, e := range s {
		if e.valid && e.paddr == paddr {
			return e.vaddr, true
		}
	}
	return 0, false
}
