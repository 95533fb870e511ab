package proc

import (
	"kmicro/kernel"
	"kmicro/kernel/elf"
	"kmicro/kernel/iam"
	"kmicro/kernel/mem"
	"kmicro/kernel/sync"
	"kmicro/kernel/vmem"
)

// ProcID identifies an entry in the process table.
type ProcID int

// ProcIDNull is returned when no process handle is available.
const ProcIDNull = ProcID(-1)

// KernelProc is the process slot reserved for the kernel itself (§3
// Process: "the kernel process occupies slot 0").
const KernelProc = ProcID(0)

type pcb struct {
	active  bool
	id      iam.ID
	vm      vmem.Handle
	mainTID ThreadID
	image   *elf.Image
}

var (
	processes    [mem.ProcessMax]pcb
	processLock  sync.Spinlock

	// memWriteFn installs a loaded segment's bytes at its user virtual
	// address; it is a seam because this port has no real MMU-backed
	// address space to write through. memWriteFn is called once per
	// segment with the already zero-extended bytes.
	memWriteFn = func(vaddr uintptr, data []byte) {}

	// enterUserFn transfers control to entry in user mode. A real port
	// wires this to the HAL trap-return path; this port defaults to a
	// no-op so process_create is host-testable without a CPU switch.
	enterUserFn = func(entry uintptr) {}

	errProcessTableFull = &kernel.Error{Module: "proc", Message: "process table is full"}
	errInvalidProcess   = &kernel.Error{Module: "proc", Message: "invalid process id"}
	errKernelProcessProtected = &kernel.Error{Module: "proc", Message: "the kernel process cannot be destroyed"}
)

// Init installs the kernel process at slot 0, owning the root identity and
// the root vmem, and registers the scheduler's Yield as the kernel-wide
// yield primitive through sync.SetYieldFn (§4.10).
func Init() {
	processLock.Acquire()
	processes[KernelProc] = pcb{active: true, id: iam.Root, vm: vmem.Root}
	processLock.Release()

	installYield()
}

func validProc(pid ProcID) bool {
	return pid >= 0 && int(pid) < mem.ProcessMax
}

// Create allocates a PCB, a fresh vmem (its kernel PDEs linked to the root
// vmem's), a fresh identity cloned from root, binds the loaded image, and
// creates the main thread whose start routine runs do_process_setup before
// entering user mode at USER_BASE_VIRT (§4.10 process_create).
func Create(raw []byte) (ProcID, *kernel.Error) {
	img, err := elf.Load(raw)
	if err != nil {
		return ProcIDNull, err
	}

	vh, err := vmem.Create()
	if err != nil {
		return ProcIDNull, err
	}

	id, err := iam.New(iam.Root)
	if err != nil {
		vmem.Destroy(vh)
		return ProcIDNull, err
	}

	pid, err := allocSlot()
	if err != nil {
		iam.Drop(id)
		vmem.Destroy(vh)
		return ProcIDNull, err
	}

	processLock.Acquire()
	processes[pid] = pcb{active: true, id: id, vm: vh, image: img}
	processLock.Release()

	tid, err := ThreadCreate(pid, func() { doProcessSetup(pid) }, uintptr(img.Entry))
	if err != nil {
		Exit(pid)
		return ProcIDNull, err
	}

	processLock.Acquire()
	processes[pid].mainTID = tid
	processLock.Release()

	MarkReady(tid)
	return pid, nil
}

func allocSlot() (ProcID, *kernel.Error) {
	processLock.Acquire()
	defer processLock.Release()

	for i := 1; i < mem.ProcessMax; i++ {
		if !processes[i].active {
			return ProcID(i), nil
		}
	}
	return ProcIDNull, errProcessTableFull
}

// doProcessSetup loads the bound image's segments into the process's user
// address space, zero-fills each segment's BSS tail, attaches one page of
// user stack one page below USER_END_VIRT, then transfers control to the
// entry point (§4.10).
func doProcessSetup(pid ProcID) {
	processLock.Acquire()
	p := processes[pid]
	processLock.Release()

	if p.image == nil {
		return
	}

	for _, seg := range p.image.Segments {
		padded := make([]byte, seg.MemSize)
		copy(padded, seg.Data)
		memWriteFn(seg.Vaddr, padded)
	}

	stackVaddr := uintptr(mem.UserEndVirt) - uintptr(mem.PageSize)
	vmem.Attach(p.vm, stackVaddr, mem.PageSize)

	enterUserFn(p.image.Entry)
}

// Exit implements process_exit (§4.10): free all of the process's threads,
// drop its identity (unless it is the kernel process), destroy its vmem
// (unless the root vmem), mark the PCB free, then yield.
func Exit(pid ProcID) *kernel.Error {
	if pid == KernelProc {
		return errKernelProcessProtected
	}
	if !validProc(pid) {
		return errInvalidProcess
	}

	processLock.Acquire()
	p := processes[pid]
	if !p.active {
		processLock.Release()
		return errInvalidProcess
	}
	processes[pid] = pcb{}
	processLock.Release()

	ExitAll(pid)

	if p.id != iam.Root {
		iam.Drop(p.id)
	}
	if p.vm != vmem.Root {
		vmem.Destroy(p.vm)
	}

	Yield()
	return nil
}

// Info reports the vmem and identity handles bound to pid.
func Info(pid ProcID) (vmem.Handle, iam.ID, *kernel.Error) {
	if !validProc(pid) {
		return vmem.VmemNull, iam.IDNull, errInvalidProcess
	}

	processLock.Acquire()
	defer processLock.Release()

	p := processes[pid]
	if !p.active {
		return vmem.VmemNull, iam.IDNull, errInvalidProcess
	}
	return p.vm, p.id, nil
}
