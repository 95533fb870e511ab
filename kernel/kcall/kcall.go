// Package kcall implements the kernel-call dispatcher of §4.12: user threads
// enter through a single trap gate with a call number and up to five
// word-sized arguments. Fast-path numbers run directly in trap context;
// every other number is handed to an in-kernel service thread through a
// two-semaphore rendezvous on a single scoreboard slot, grounded on the
// teacher's producer/consumer shape in sync.Semaphore and generalized from a
// single condition into the {nr, arg0..arg4, ret} scoreboard of §4.12.
package kcall

import (
	"reflect"
	"unsafe"

	"kmicro/kernel/excp"
	"kmicro/kernel/mem"
	"kmicro/kernel/mem/frame"
	"kmicro/kernel/proc"
	"kmicro/kernel/sync"
	"kmicro/kernel/uart"
	"kmicro/kernel/vmem"
)

// Number identifies a kernel call. Numbers not claimed by the fast path are
// reserved for the service-thread dispatcher (§4.12, §6 "Kernel call
// numbering").
type Number uint32

const (
	Void0 Number = iota
	Void1
	Void2
	Void3
	Void4
	Void5
	Write
	Shutdown
	Fralloc
	Frfree
	Vmcreate
	Vmremove
	Vmmap
	Vmunmap
	Vmctrl
	Vminfo
	KmodGet
	Spawn

	// The remaining numbers are slow-path: they route through the
	// scoreboard to a registered service handler instead of running
	// directly in trap context (§5 suspension points).
	ThreadYield
	ProcessSleep
	ProcessExit
	ExcpControl
	ExcpWait
	ExcpResume

	numberCount
)

// ErrRet is returned in place of a real word result when a fast-path or
// service call fails; callers translate it to the negative errno the trap
// gate hands back to user mode.
const ErrRet = ^uintptr(0)

// Args is the scoreboard payload: a call number, up to five word-sized
// arguments, and the return slot the service thread fills in before
// signalling userSem (§4.12).
type Args struct {
	Nr                           Number
	Arg0, Arg1, Arg2, Arg3, Arg4 uintptr
	Ret                          uintptr
}

// Handler services one slow-path call number. It runs on the in-kernel
// service thread, not in trap context, so it may block.
type Handler func(pid proc.ProcID, a Args) uintptr

var (
	stats     [numberCount]uint64
	statsLock sync.Spinlock

	scoreboard   Args
	scoreboardPid proc.ProcID
	scoreboardLock sync.Spinlock
	kernelSem    = sync.NewSemaphore(0)
	userSem      = sync.NewSemaphore(0)

	services [numberCount]Handler

	shutdownFn = func() { panic("kcall: shutdown") }
)

func isFastPath(nr Number) bool {
	return nr <= Spawn
}

// Init wires the slow-path service handlers that every port provides out of
// the box: thread_yield, process_sleep, process_exit and the exception
// broker's wait/control/resume calls (§5 suspension points).
func Init() {
	RegisterService(ThreadYield, func(pid proc.ProcID, a Args) uintptr {
		proc.Yield()
		return 0
	})
	RegisterService(ProcessSleep, func(pid proc.ProcID, a Args) uintptr {
		proc.SleepAll(pid)
		return 0
	})
	RegisterService(ProcessExit, func(pid proc.ProcID, a Args) uintptr {
		if err := proc.Exit(pid); err != nil {
			return ErrRet
		}
		return 0
	})
	RegisterService(ExcpControl, func(pid proc.ProcID, a Args) uintptr {
		if err := excp.Control(excp.Line(a.Arg0), pid, excp.Action(a.Arg1)); err != nil {
			return ErrRet
		}
		return 0
	})
	RegisterService(ExcpWait, func(pid proc.ProcID, a Args) uintptr {
		e, err := excp.Wait(pid)
		if err != nil {
			return ErrRet
		}
		out := bytesAt(a.Arg0, unsafe.Sizeof(excp.Excp{}))
		*(*excp.Excp)(unsafe.Pointer(&out[0])) = e
		return 0
	})
	RegisterService(ExcpResume, func(pid proc.ProcID, a Args) uintptr {
		if err := excp.Resume(excp.Line(a.Arg0), pid); err != nil {
			return ErrRet
		}
		return 0
	})
}

// SetShutdownFn installs the primitive the Shutdown fast path calls. boot
// wires this to hal/core.Shutdown once the per-core slot table is up;
// until then Shutdown panics rather than silently doing nothing.
func SetShutdownFn(fn func()) {
	shutdownFn = fn
}

// RegisterService installs handler for slow-path call number nr. Fast-path
// numbers cannot be overridden this way.
func RegisterService(nr Number, handler Handler) {
	if isFastPath(nr) || int(nr) >= len(services) {
		return
	}
	services[nr] = handler
}

// Dispatch is the trap gate's entry point (§4.12): it runs fast-path calls
// directly and returns their result, or publishes the request to the
// scoreboard and blocks the caller until the service thread has answered.
func Dispatch(pid proc.ProcID, a Args) uintptr {
	record(a.Nr)

	if isFastPath(a.Nr) {
		return runFastPath(a)
	}

	scoreboardLock.Acquire()
	scoreboard = a
	scoreboardPid = pid
	kernelSem.Up()
	userSem.Down()
	ret := scoreboard.Ret
	scoreboardLock.Release()
	return ret
}

// ServiceLoop is the in-kernel consumer side of the rendezvous (§4.12):
//
//	loop { down(kernel_sem); dispatch; up(user_sem) }
//
// It never returns; boot runs it on a dedicated service thread.
func ServiceLoop() {
	for {
		kernelSem.Down()
		nr := scoreboard.Nr
		h := services[nr]
		if h == nil {
			scoreboard.Ret = ErrRet
		} else {
			scoreboard.Ret = h(scoreboardPid, scoreboard)
		}
		userSem.Up()
	}
}

func record(nr Number) {
	statsLock.Acquire()
	if int(nr) < len(stats) {
		stats[nr]++
	}
	statsLock.Release()
}

// Stats reports the number of times each kernel call number has been
// dispatched since boot. This supplements §4.12 with the call-accounting
// kept by the source's fast-path table.
func Stats() [numberCount]uint64 {
	statsLock.Acquire()
	defer statsLock.Release()
	return stats
}

// bytesAt overlays a byte slice on top of an arbitrary address, the same
// technique kernel.Memset uses to treat a raw pointer as Go-addressable
// memory without a copy.
func bytesAt(addr uintptr, size uintptr) []byte {
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))
}

func runFastPath(a Args) uintptr {
	switch a.Nr {
	case Void0, Void1, Void2, Void3, Void4, Void5:
		return a.Arg0

	case Write:
		buf := bytesAt(a.Arg0, a.Arg1)
		return uintptr(uart.Write(buf))

	case Shutdown:
		shutdownFn()
		return 0

	case Fralloc:
		f, err := frame.Alloc()
		if err != nil || f == mem.FrameNull {
			return ErrRet
		}
		return uintptr(f)

	case Frfree:
		if err := frame.Free(mem.Frame(a.Arg0)); err != nil {
			return ErrRet
		}
		return 0

	case Vmcreate:
		h, err := vmem.Create()
		if err != nil {
			return ErrRet
		}
		return uintptr(h)

	case Vmremove:
		if err := vmem.Destroy(vmem.Handle(a.Arg0)); err != nil {
			return ErrRet
		}
		return 0

	case Vmmap:
		w, x := a.Arg4&0x1 != 0, a.Arg4&0x2 != 0
		err := vmem.Map(vmem.Handle(a.Arg0), a.Arg1, mem.Frame(a.Arg2), mem.Size(a.Arg3), w, x)
		if err != nil {
			return ErrRet
		}
		return 0

	case Vmunmap:
		f, err := vmem.Unmap(vmem.Handle(a.Arg0), a.Arg1)
		if err != nil {
			return ErrRet
		}
		return uintptr(f)

	case Vmctrl:
		w, x := a.Arg2&0x1 != 0, a.Arg2&0x2 != 0
		if err := vmem.Ctrl(vmem.Handle(a.Arg0), a.Arg1, w, x); err != nil {
			return ErrRet
		}
		return 0

	case Vminfo:
		f, w, x, err := vmem.Info(vmem.Handle(a.Arg0), a.Arg1)
		if err != nil {
			return ErrRet
		}
		// Pack the frame number and the two permission bits into one
		// word: callers shift right by 2 to recover the frame.
		ret := uintptr(f) << 2
		if w {
			ret |= 0x1
		}
		if x {
			ret |= 0x2
		}
		return ret

	case KmodGet:
		// No boot module loader exists on this port yet; report "not
		// found" rather than fabricating a module handle.
		return ErrRet

	case Spawn:
		raw := bytesAt(a.Arg0, a.Arg1)
		pid, err := proc.Create(raw)
		if err != nil {
			return ErrRet
		}
		return uintptr(pid)
	}

	return ErrRet
}
