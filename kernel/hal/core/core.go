// Package core implements the per-core bootstrap/sleep/wake/shutdown
// primitives named in §4.1 and the cache-aligned per-core slot table of §5:
// "application cores are brought up by core_start(core_id, entry_fn) and
// placed in a cache-aligned per-core slot of {state, start_fn, lock}".
package core

import (
	"kmicro/kernel"
	"kmicro/kernel/cpu"
	"kmicro/kernel/kfmt"
	"kmicro/kernel/sync"
)

// State describes the lifecycle of one core's bootstrap slot.
type State uint8

const (
	// StateOffline means the slot has never been started.
	StateOffline State = iota
	// StateStarting means StartCore has been requested but the core has
	// not yet signaled readiness.
	StateStarting
	// StateRunning means the core has entered its start function.
	StateRunning
	// StateSleeping means the core is parked in a low-power wait state.
	StateSleeping
	// StateShutdown means the core has been halted and will not resume.
	StateShutdown
)

// MaxCores bounds the per-core slot table. cache-line padding keeps two
// cores' slots from false-sharing a line when both spin on their own lock.
const MaxCores = 16

// slot is cache-line padded per §5 ("Spinlock per slot, cache-line
// padded") so two cores' bootstrap state never share a cache line.
type slot struct {
	lock    sync.Spinlock
	state   State
	startFn func()
	_       [48]byte // pad to 64 bytes alongside the Spinlock/State/func fields
}

var slots [MaxCores]slot

var (
	startCoreFn = cpu.StartCore
	sleepFn     = cpu.Sleep
	resetFn     = cpu.Reset
	coreIDFn    = cpu.CoreID

	errInvalidCore  = &kernel.Error{Module: "core", Message: "invalid core id"}
	errAlreadyUp    = &kernel.Error{Module: "core", Message: "core already starting or running"}
)

// StartCore requests that coreID begin executing entry. It records entry in
// the per-core slot, under the slot's lock, before notifying the target
// core. It issues no cache invalidation or barrier of its own; the slot
// lock is the only ordering between the write and the notify.
func StartCore(coreID uint32, entry func()) *kernel.Error {
	if coreID >= MaxCores {
		return errInvalidCore
	}

	s := &slots[coreID]
	s.lock.Acquire()
	defer s.lock.Release()

	if s.state == StateStarting || s.state == StateRunning {
		return errAlreadyUp
	}

	s.startFn = entry
	s.state = StateStarting

	startCoreFn(coreID, entryTrampolineAddr(coreID))
	return nil
}

// entryTrampolineAddr returns the address StartCore hands the HAL's
// core-bring-up primitive. It always returns 0: this port has no per-core
// assembly stub, so nothing on the target core calls Enter(coreID).
func entryTrampolineAddr(coreID uint32) uintptr {
	return 0
}

// Enter is called by the per-core bring-up trampoline once the target core
// has switched onto its own stack. It transitions the slot to StateRunning
// and invokes the registered start function; it never returns.
func Enter(coreID uint32) {
	if coreID >= MaxCores {
		kfmt.Panic(errInvalidCore)
	}

	s := &slots[coreID]
	s.lock.Acquire()
	s.state = StateRunning
	fn := s.startFn
	s.lock.Release()

	if fn != nil {
		fn()
	}
}

// GetState returns the current state of coreID's bootstrap slot.
func GetState(coreID uint32) (State, *kernel.Error) {
	if coreID >= MaxCores {
		return 0, errInvalidCore
	}
	s := &slots[coreID]
	s.lock.Acquire()
	defer s.lock.Release()
	return s.state, nil
}

// Sleep parks the calling core until the next interrupt, per §4.1's
// per-core sleep primitive.
func Sleep() {
	id := coreIDFn()
	if id < MaxCores {
		s := &slots[id]
		s.lock.Acquire()
		s.state = StateSleeping
		s.lock.Release()
	}

	sleepFn()

	if id < MaxCores {
		s := &slots[id]
		s.lock.Acquire()
		if s.state == StateSleeping {
			s.state = StateRunning
		}
		s.lock.Release()
	}
}

// Wake is invoked by an interrupt handler to record that the calling core
// is no longer sleeping.
func Wake(coreID uint32) {
	if coreID >= MaxCores {
		return
	}
	s := &slots[coreID]
	s.lock.Acquire()
	if s.state == StateSleeping {
		s.state = StateRunning
	}
	s.lock.Release()
}

// Reset is the per-core non-returning reset capability named in §9 ("the
// HAL exposes core_reset() as a non-returning operation"). It marks the
// slot shut down and never returns to the caller.
func Reset(coreID uint32) {
	if coreID < MaxCores {
		s := &slots[coreID]
		s.lock.Acquire()
		s.state = StateShutdown
		s.lock.Release()
	}
	resetFn()
}

// Shutdown halts the calling core. It is the kcall dispatcher's shutdown
// fast path and is implemented in terms of Reset, this port's variant of
// the per-core reset capability.
func Shutdown() {
	Reset(coreIDFn())
}
