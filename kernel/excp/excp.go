// Package excp implements the exception broker of §4.11: it lets a process
// claim ownership of one or more exception lines and receive faults as
// ordinary events in user mode instead of the kernel panicking on them.
// Grounded on the teacher's vmm/fault.go page-fault-handler shape,
// generalized from a single copy-on-write fast path into a per-line
// owner/pending/condvar broker (§3 ExceptionLine).
package excp

import (
	"kmicro/kernel"
	"kmicro/kernel/irq"
	"kmicro/kernel/kfmt"
	"kmicro/kernel/proc"
	"kmicro/kernel/sync"
)

// Line identifies one of the EXCEPTIONS_NUM exception vectors a process may
// claim ownership of (§3 ExceptionLine). It shares its numbering with
// irq.ExceptionNum.
type Line = irq.ExceptionNum

// LineCount mirrors irq.ExceptionCount: one broker line per exception vector.
const LineCount = irq.ExceptionCount

// Action selects the operation performed by Control (§4.11 excp_control).
type Action uint8

const (
	// Handle claims a line for the calling process.
	Handle Action = iota
	// Defer relinquishes a line owned by the calling process.
	Defer
)

// Excp is the fault record delivered to a waiting owner (§3 "Exception
// record"): the vector number, the faulting address (valid for page faults),
// and the faulting program counter.
type Excp struct {
	Num  Line
	Addr uintptr
	PC   uintptr
}

type line struct {
	owner   proc.ProcID
	pending bool
	info    Excp
	ack     sync.Condvar
}

var (
	lines     [LineCount]line
	lock      sync.Spinlock
	triggered sync.Condvar

	// panicFn is kfmt.Panic, which halts the CPU; tests replace it with a
	// recoverable panic.
	panicFn = kfmt.Panic

	errInvalidLine = &kernel.Error{Module: "excp", Message: "invalid exception line"}
	errBusy        = &kernel.Error{Module: "excp", Message: "exception line is already owned"}
	errNotOwner    = &kernel.Error{Module: "excp", Message: "caller does not own this exception line"}
	errPending     = &kernel.Error{Module: "excp", Message: "exception line still has a pending event"}
	errNoPending   = &kernel.Error{Module: "excp", Message: "exception line has no pending event to resume"}
	errUnassigned  = &kernel.Error{Module: "excp", Message: "fault on exception line with no owner"}
	errReentrant   = &kernel.Error{Module: "excp", Message: "reentrant fault on an already-pending exception line"}
)

func validLine(n Line) bool { return int(n) < LineCount }

// Init resets the broker. Used by boot and by tests; the zero value of the
// line table already means "unowned" since proc.ProcIDNull is -1... except
// the zero value of proc.ProcID is 0, which is a live pid (the kernel
// process), so Init explicitly marks every line unowned.
func Init() {
	lock.Acquire()
	defer lock.Release()
	for i := range lines {
		lines[i] = line{owner: proc.ProcIDNull}
	}
}

// Control implements excp_control(n, action) (§4.11). Handle claims line n
// for pid, failing -EBUSY if another process already owns it. Defer
// relinquishes pid's ownership of n, failing -EPERM if pid is not the owner
// and -EBUSY if an event is still pending acknowledgement.
func Control(n Line, pid proc.ProcID, action Action) *kernel.Error {
	if !validLine(n) {
		return errInvalidLine
	}

	lock.Acquire()
	defer lock.Release()

	l := &lines[n]
	switch action {
	case Handle:
		if l.owner != proc.ProcIDNull && l.owner != pid {
			return errBusy
		}
		l.owner = pid
		return nil
	case Defer:
		if l.owner != pid {
			return errNotOwner
		}
		if l.pending {
			return errPending
		}
		l.owner = proc.ProcIDNull
		return nil
	default:
		return errInvalidLine
	}
}

// Owner reports the process currently owning line n, or proc.ProcIDNull if
// unassigned. Exposed for tests and for the default exception handler's
// decision of whether to route a fault through the broker at all.
func Owner(n Line) (proc.ProcID, *kernel.Error) {
	if !validLine(n) {
		return proc.ProcIDNull, errInvalidLine
	}
	lock.Acquire()
	defer lock.Release()
	return lines[n].owner, nil
}

// Trigger runs the in-kernel handler protocol of §4.11 when a fault occurs
// on a line that has an owner: it panics if the line is unassigned (step 1)
// or already pending a reentrant fault (step 2, "documented limitation"),
// otherwise it publishes info, broadcasts triggered, and blocks the calling
// (faulting) thread on the line's ack condvar until Resume is called (steps
// 3-5). The caller is expected to be running on the faulting kernel thread,
// so Trigger does not return until the owner has acknowledged.
func Trigger(n Line, info Excp) {
	if !validLine(n) {
		panicFn(errInvalidLine)
	}

	lock.Acquire()
	l := &lines[n]
	if l.owner == proc.ProcIDNull {
		lock.Release()
		panicFn(errUnassigned)
	}
	if l.pending {
		kfmt.Printf("[excp] reentrant fault on exception %d (owner: %d)\n", uint8(n), int(l.owner))
		lock.Release()
		panicFn(errReentrant)
	}

	l.pending = true
	l.info = info
	triggered.Broadcast()

	// Block until Resume flips pending back to false and broadcasts ack.
	for l.pending {
		l.ack.Wait(&lock)
	}
	lock.Release()
}

// Wait implements excp_wait (§4.11): it blocks until some line owned by pid
// has a pending event, then returns that event. The process remains
// "pending" (the owning line is not cleared) until it calls Resume. A pid
// that does not own any line at all returns -EPERM immediately instead of
// blocking forever, matching excp_wait's call to excpline_owns_any() in the
// ground-truth mod.c before it ever touches the wait queue.
func Wait(pid proc.ProcID) (Excp, *kernel.Error) {
	if pid == proc.ProcIDNull {
		return Excp{}, errInvalidLine
	}

	lock.Acquire()
	if !ownsAnyLocked(pid) {
		lock.Release()
		return Excp{}, errNotOwner
	}
	for {
		if n, ok := firstPendingForLocked(pid); ok {
			info := lines[n].info
			lock.Release()
			return info, nil
		}
		triggered.Wait(&lock)
	}
}

func ownsAnyLocked(pid proc.ProcID) bool {
	for i := range lines {
		if lines[i].owner == pid {
			return true
		}
	}
	return false
}

func firstPendingForLocked(pid proc.ProcID) (Line, bool) {
	for i := range lines {
		if lines[i].owner == pid && lines[i].pending {
			return Line(i), true
		}
	}
	return 0, false
}

// Resume implements excp_resume(n) (§4.11): it acknowledges the pending
// event on line n, letting the faulting thread blocked in Trigger return
// from the trap frame. Only the owner may call it, and only when an event is
// actually pending.
func Resume(n Line, pid proc.ProcID) *kernel.Error {
	if !validLine(n) {
		return errInvalidLine
	}

	lock.Acquire()
	defer lock.Release()

	l := &lines[n]
	if l.owner != pid {
		return errNotOwner
	}
	if !l.pending {
		return errNoPending
	}

	l.pending = false
	l.ack.Broadcast()
	return nil
}
