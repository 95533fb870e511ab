package sync

import "sync/atomic"

// Condvar is a busy-wait condition variable keyed on a generation counter.
// Unlike sync.Cond it never parks on an OS thread, so it can be used before
// goruntime has bootstrapped a full Go scheduler. The exception broker
// (§4.11) uses one per exception line for ack/triggered signaling.
type Condvar struct {
	gen uint32
}

// Wait releases l, blocks until the next Broadcast, then re-acquires l. The
// caller must hold l when calling Wait.
func (c *Condvar) Wait(l *Spinlock) {
	g := atomic.LoadUint32(&c.gen)
	l.Release()

	var spins uint32
	for atomic.LoadUint32(&c.gen) == g {
		cpuPause()
		spins++
		if spins >= 1 {
			spins = 0
			if yieldFn != nil {
				yieldFn()
			}
		}
	}

	l.Acquire()
}

// Broadcast wakes every thread currently blocked in Wait.
func (c *Condvar) Broadcast() {
	atomic.AddUint32(&c.gen, 1)
}
