package sync

import "sync/atomic"

// SetYieldFn installs the function invoked by a spinning Acquire() once it
// has spun attemptsBeforeYielding times without success. kernel/proc calls
// this once thread_yield is available so that spinning threads cooperate
// with the scheduler instead of starving it.
func SetYieldFn(fn func()) {
	yieldFn = fn
}

// archAcquireSpinlock busy-waits using a PAUSE-backed spin loop until it can
// CAS state from 0 to 1. After attemptsBeforeYielding unsuccessful attempts
// it calls the registered yieldFn (if any) before retrying.
func archAcquireSpinlock(state *uint32, attempts uint32) {
	var spins uint32

	for !atomic.CompareAndSwapUint32(state, 0, 1) {
		cpuPause()
		spins++
		if spins >= attempts {
			spins = 0
			if yieldFn != nil {
				yieldFn()
			}
		}
	}
}

// cpuPause executes the PAUSE instruction, hinting to the CPU that this is a
// spin-wait loop so it can de-prioritize speculative execution and save
// power.
func cpuPause()
