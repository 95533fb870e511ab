// Package boot sequences the kernel from the rt0 entry point to a running
// scheduler, following the control flow of §2: HAL arch, HAL services,
// memory-map commit, frame init, kpool init, root vmem init, IAM init,
// process/thread init, kcall dispatcher up. It replaces the teacher's
// kernel/kmain package, generalizing its single linear error chain into a
// Config-driven sequence that also brings up the subsystems kmain never
// had: IAM, the process/thread table, the exception broker and the kcall
// service thread.
package boot

import (
	"kmicro/kernel"
	"kmicro/kernel/excp"
	"kmicro/kernel/goruntime"
	"kmicro/kernel/hal/core"
	"kmicro/kernel/hal/idt"
	"kmicro/kernel/hal/multiboot"
	"kmicro/kernel/hal/pic"
	"kmicro/kernel/iam"
	"kmicro/kernel/kcall"
	"kmicro/kernel/kfmt"
	"kmicro/kernel/mem"
	"kmicro/kernel/mem/frame"
	"kmicro/kernel/proc"
	"kmicro/kernel/vmem"
)

// KernelCS is the flat 64-bit code-segment selector this port's GDT installs
// for ring 0, passed to idt.Init (§6 "idt_init(KERNEL_CS)").
const KernelCS uint16 = 0x08

// defaultHWIntOffset is where hardware interrupts are remapped to in the
// IDT, right after the 32 CPU exception vectors (§6 "hwint_off, typically
// 32").
const defaultHWIntOffset uint8 = 32

// Config carries everything boot.Init needs that only the rt0 assembly or
// the platform's own init code can supply: the multiboot payload location,
// the kernel image's physical bounds (for the frame allocator to book), and
// the IDT trampolines the assembly layer installed (§6 REDESIGN note: the
// trampolines themselves stay hand-written assembly; this package only owns
// the sequencing and descriptor wiring around them).
type Config struct {
	MultibootInfoPtr uintptr
	KernelStart      uintptr
	KernelEnd        uintptr
	Trampolines      idt.Trampolines
}

// Stage seams let tests exercise Init's sequencing without a real CPU, MMU
// or PIC underneath; production leaves every one of these at its default.
var (
	idtInitFn  = idt.Init
	picInitFn  = pic.Init
	frameInitFn = frame.Init
	kpoolInitFn = func() {}
	vmemInitFn  = vmem.Init
	iamInitFn   = iam.Init
	procInitFn  = proc.Init
	excpInitFn  = excp.Init
	goruntimeInitFn = goruntime.Init

	visitMemRegionsFn = multiboot.VisitMemRegions

	setShutdownFnFn = kcall.SetShutdownFn
	coreShutdownFn  = core.Shutdown
)

// regionType maps a multiboot memory-entry type onto the mem package's
// coarser three-way classification (§3 MemoryMap, §4.8).
func regionType(t multiboot.MemoryEntryType) mem.RegionType {
	if t == multiboot.MemAvailable {
		return mem.Available
	}
	return mem.Reserved
}

// commitMemoryMap walks the bootloader-reported regions and registers each
// one with kernel/mem (§4.8). It is the "memory-map commit" step of §2's
// control flow, run before the frame allocator boots so frame.Init's own
// bookkeeping of the kernel and kpool ranges lands on top of an accurate
// map.
func commitMemoryMap() *kernel.Error {
	mem.MmapReset()

	var firstErr *kernel.Error
	visitMemRegionsFn(func(e *multiboot.MemoryMapEntry) bool {
		r := mem.Region{Base: uintptr(e.PhysAddress), Size: uintptr(e.Length), Type: regionType(e.Type)}
		if err := mem.MmapRegister(r); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})

	return firstErr
}

// Init runs the boot sequence described by §2 and returns once the kcall
// service thread is scheduled. It does not itself loop forever: the caller
// (rt0, or a test) is expected to hand control to the scheduler afterwards,
// exactly as the teacher's Kmain fell through to kernel.Panic if the
// scheduler ever returned.
func Init(cfg Config) *kernel.Error {
	multiboot.SetInfoPtr(cfg.MultibootInfoPtr)

	idtInitFn(KernelCS, cfg.Trampolines)
	picInitFn(defaultHWIntOffset)

	if err := commitMemoryMap(); err != nil {
		return err
	}

	frameInitFn()
	kpoolInitFn()
	vmemInitFn()

	if err := goruntimeInitFn(); err != nil {
		return err
	}

	iamInitFn()
	procInitFn()
	excpInitFn()
	kcall.Init()
	setShutdownFnFn(coreShutdownFn)

	tid, err := proc.ThreadCreate(proc.KernelProc, kcall.ServiceLoop, 0)
	if err != nil {
		return err
	}
	proc.MarkReady(tid)

	kfmt.Printf("boot: kernel up, kcall service thread %d ready\n", tid)
	return nil
}
