package sync

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCondvarWaitBroadcast(t *testing.T) {
	defer func(orig func()) { yieldFn = orig }(yieldFn)
	yieldFn = runtime.Gosched

	var (
		lock    Spinlock
		cv      Condvar
		wg      sync.WaitGroup
		woken   int32
		arrived int32
		waiters = 4
	)

	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			lock.Acquire()
			atomic.AddInt32(&arrived, 1)
			cv.Wait(&lock)
			woken++
			lock.Release()
		}()
	}

	// Broadcast repeatedly until every waiter has registered and woken up;
	// a single Broadcast issued before a waiter calls Wait would otherwise
	// be missed by that waiter (the known single-shot limitation this
	// generation-counter condvar shares with §4.11's single pending slot).
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&arrived) < int32(waiters) || woken < int32(waiters) {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for all waiters to wake")
		}
		lock.Acquire()
		cv.Broadcast()
		lock.Release()
		runtime.Gosched()
	}

	wg.Wait()

	if woken != int32(waiters) {
		t.Errorf("expected all %d waiters to wake; got %d", waiters, woken)
	}
}
