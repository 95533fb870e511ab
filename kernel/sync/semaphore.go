package sync

import "sync/atomic"

// Semaphore is a counting semaphore implemented without relying on OS
// thread-park primitives, in keeping with Spinlock's busy-wait style. The
// kcall dispatcher (§4.12) uses a pair of these, initialized to zero, as the
// rendezvous between a user trap producer and the in-kernel service
// consumer.
type Semaphore struct {
	count int32
}

// NewSemaphore returns a Semaphore initialized to the given count.
func NewSemaphore(initial int32) *Semaphore {
	return &Semaphore{count: initial}
}

// Up increments the semaphore, waking one blocked Down if any is spinning.
func (s *Semaphore) Up() {
	atomic.AddInt32(&s.count, 1)
}

// Down blocks until the semaphore is positive, then atomically decrements
// it. Like Spinlock.Acquire, it yields to yieldFn after spinning for a while
// so it does not starve the thread that is about to call Up.
func (s *Semaphore) Down() {
	var spins uint32
	for {
		if cur := atomic.LoadInt32(&s.count); cur > 0 {
			if atomic.CompareAndSwapInt32(&s.count, cur, cur-1) {
				return
			}
			continue
		}

		cpuPause()
		spins++
		if spins >= 1 {
			spins = 0
			if yieldFn != nil {
				yieldFn()
			}
		}
	}
}
