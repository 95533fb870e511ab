// Package proc implements the process/thread subsystem of §4.10: a
// fixed-size PCB table, a fixed-size thread table owned by their processes,
// and a cooperative scheduler driven by a timer quantum. It is grounded on
// the teacher's fixed-table-plus-spinlock pattern (kernel/mm/vmm's
// addrSpacePool) generalized to threads and processes, and registers Yield
// as the sync package's yield function through sync.SetYieldFn during Init.
package proc

import (
	"kmicro/kernel"
	"kmicro/kernel/mem"
	"kmicro/kernel/sync"
)

// ThreadID identifies an entry in the thread table.
type ThreadID int

// ThreadIDNull is returned when no thread handle is available.
const ThreadIDNull = ThreadID(-1)

// ThreadState is the lifecycle of a thread (§3 Thread).
type ThreadState uint8

const (
	ThreadUnused ThreadState = iota
	ThreadStarted
	ThreadReady
	ThreadRunning
	ThreadSleeping
	ThreadTerminated
)

// Quantum is the number of timer ticks a thread runs before the scheduler
// considers preempting it (§4.10, GLOSSARY).
const Quantum = 10

// threadContext is a thread's saved continuation (§3 Thread "ctx" field).
// This port has no real kernel stack to save registers onto, so the
// continuation is a parked goroutine and resume is the handshake that wakes
// it: a thread blocked in Yield is a goroutine blocked on its own resume
// channel, not a stack frame unwound and forgotten.
type threadContext struct {
	resume   chan struct{}
	launched bool
}

type thread struct {
	pid       ProcID
	state     ThreadState
	startFn   func()
	arg       uintptr
	ticksLeft uint32
	ctx       *threadContext
}

var (
	threads    [mem.ThreadMax]thread
	threadLock sync.Spinlock

	current ThreadID = ThreadIDNull

	// activeThreadGoroutine is the thread whose own goroutine is presently
	// executing startFn, as opposed to a caller (boot, a test) that merely
	// points `current` at a thread without running inside it. Yield only
	// parks the caller's goroutine when the two agree.
	activeThreadGoroutine ThreadID = ThreadIDNull

	contextSwitchFn = func(from, to ThreadID) {}

	errThreadTableFull = &kernel.Error{Module: "proc", Message: "thread table is full"}
	errInvalidThread   = &kernel.Error{Module: "proc", Message: "invalid thread id"}
)

func validThread(tid ThreadID) bool {
	return tid >= 0 && int(tid) < mem.ThreadMax
}

// ThreadCreate allocates a thread owned by pid whose start function is fn,
// invoked once the thread is first scheduled (§3 Thread). arg is stored in
// the thread's slot; it is not passed to fn, which takes no argument.
func ThreadCreate(pid ProcID, fn func(), arg uintptr) (ThreadID, *kernel.Error) {
	threadLock.Acquire()
	defer threadLock.Release()

	for i := 0; i < mem.ThreadMax; i++ {
		if threads[i].state == ThreadUnused {
			threads[i] = thread{
				pid:       pid,
				state:     ThreadStarted,
				startFn:   fn,
				arg:       arg,
				ticksLeft: Quantum,
				ctx:       &threadContext{resume: make(chan struct{})},
			}
			return ThreadID(i), nil
		}
	}

	return ThreadIDNull, errThreadTableFull
}

// ThreadExit tears down tid, marking its slot unused.
func ThreadExit(tid ThreadID) *kernel.Error {
	threadLock.Acquire()
	defer threadLock.Release()

	if !validThread(tid) || threads[tid].state == ThreadUnused {
		return errInvalidThread
	}
	threads[tid] = thread{}
	if current == tid {
		current = ThreadIDNull
	}
	return nil
}

// MarkReady transitions tid from Started or Sleeping into Ready so the
// scheduler may pick it up.
func MarkReady(tid ThreadID) *kernel.Error {
	threadLock.Acquire()
	defer threadLock.Release()

	if !validThread(tid) || threads[tid].state == ThreadUnused {
		return errInvalidThread
	}
	threads[tid].state = ThreadReady
	return nil
}

// GetState reports tid's current lifecycle state.
func GetState(tid ThreadID) (ThreadState, *kernel.Error) {
	threadLock.Acquire()
	defer threadLock.Release()

	if !validThread(tid) || threads[tid].state == ThreadUnused {
		return ThreadUnused, errInvalidThread
	}
	return threads[tid].state, nil
}

// Current returns the handle of the thread currently marked running.
func Current() ThreadID {
	threadLock.Acquire()
	defer threadLock.Release()
	return current
}

// pickNextLocked scans the thread table starting after `from` for the next
// Ready or Started thread, wrapping around. threadLock must be held.
func pickNextLocked(from ThreadID) ThreadID {
	start := int(from) + 1
	for i := 0; i < mem.ThreadMax; i++ {
		idx := (start + i) % mem.ThreadMax
		if threads[idx].state == ThreadReady || threads[idx].state == ThreadStarted {
			return ThreadID(idx)
		}
	}
	return ThreadIDNull
}

// runThread is a thread's continuation: a goroutine that runs startFn to
// completion (it may run forever, as kcall.ServiceLoop does) and parks on
// ctx.resume every time the thread yields from inside itself, resuming
// exactly where it left off rather than restarting startFn. Yield launches
// this exactly once per thread, the first time that thread is scheduled.
func runThread(tid ThreadID) {
	threadLock.Acquire()
	activeThreadGoroutine = tid
	fn := threads[tid].startFn
	threadLock.Release()

	if fn != nil {
		fn()
	}

	// startFn returned instead of yielding or exiting: treat it as an
	// implicit exit. Production thread bodies (ServiceLoop, a process's
	// entry trampoline once it reaches user mode) are not expected to take
	// this path.
	threadLock.Acquire()
	if validThread(tid) && threads[tid].state != ThreadUnused {
		threads[tid].state = ThreadTerminated
	}
	if activeThreadGoroutine == tid {
		activeThreadGoroutine = ThreadIDNull
	}
	threadLock.Release()
}

// Yield implements thread_yield (§4.10): it demotes the calling thread to
// Ready (or leaves a terminated thread alone), selects the next Ready thread
// round-robin, and hands it control — launching its goroutine the first
// time it runs, or waking its parked goroutine on ctx.resume otherwise. If
// Yield is called from inside the calling thread's own goroutine (as
// opposed to a caller, such as boot or a test, that merely points `current`
// at a thread without running inside it), it then parks on its own
// ctx.resume until some later Yield hands control back to it. Registered
// with sync.SetYieldFn so every spinning primitive in the codebase
// reschedules through here instead of recursing into the next thread's
// startFn from its own call stack.
func Yield() {
	threadLock.Acquire()

	from := current
	wasRunning := validThread(from) && threads[from].state == ThreadRunning
	if wasRunning {
		threads[from].state = ThreadReady
	}

	next := pickNextLocked(from)
	if next == ThreadIDNull {
		if wasRunning {
			threads[from].state = ThreadRunning
		}
		threadLock.Release()
		return
	}

	isOwn := validThread(from) && activeThreadGoroutine == from
	needLaunch := !threads[next].ctx.launched
	threads[next].ctx.launched = true
	threads[next].state = ThreadRunning
	threads[next].ticksLeft = Quantum
	current = next
	nextCtx := threads[next].ctx

	var fromCtx *threadContext
	if isOwn {
		fromCtx = threads[from].ctx
		activeThreadGoroutine = ThreadIDNull
	}
	threadLock.Release()

	contextSwitchFn(from, next)
	if needLaunch {
		go runThread(next)
	} else {
		nextCtx.resume <- struct{}{}
	}

	if isOwn {
		<-fromCtx.resume

		threadLock.Acquire()
		activeThreadGoroutine = from
		threadLock.Release()
	}
}

// Tick is invoked by the timer IRQ handler once per period. It decrements
// the current thread's remaining quantum and yields once it reaches zero
// (§4.10 PROCESS_QUANTUM, §5 "Timer IRQ may preempt inside kernel code only
// at points explicitly marked interruptible").
func Tick() {
	threadLock.Acquire()
	if !validThread(current) {
		threadLock.Release()
		return
	}
	threads[current].ticksLeft--
	expired := threads[current].ticksLeft == 0
	threadLock.Release()

	if expired {
		Yield()
	}
}

// SleepAll transitions every thread owned by pid into ThreadSleeping
// (§4.10 thread_sleep_all).
func SleepAll(pid ProcID) {
	threadLock.Acquire()
	defer threadLock.Release()

	for i := range threads {
		if threads[i].pid == pid && threads[i].state != ThreadUnused && threads[i].state != ThreadTerminated {
			threads[i].state = ThreadSleeping
		}
	}
}

// WakeupAll transitions every sleeping thread owned by pid back to Ready
// (§4.10 thread_wakeup_all).
func WakeupAll(pid ProcID) {
	threadLock.Acquire()
	defer threadLock.Release()

	for i := range threads {
		if threads[i].pid == pid && threads[i].state == ThreadSleeping {
			threads[i].state = ThreadReady
		}
	}
}

// ExitAll tears down every thread owned by pid, used by process_exit.
func ExitAll(pid ProcID) {
	threadLock.Acquire()
	defer threadLock.Release()

	for i := range threads {
		if threads[i].pid == pid {
			threads[i] = thread{}
			if current == ThreadID(i) {
				current = ThreadIDNull
			}
		}
	}
}

// installYield registers Yield as the kernel-wide scheduling primitive
// invoked by spinning Spinlock/Semaphore/Condvar operations.
func installYield() {
	sync.SetYieldFn(Yield)
}
