// Package vmem implements the virtual-memory-space manager (§4.7): a
// fixed-size handle table of address spaces layered over page directories,
// generalized from the teacher's single kernel VMA
// (kernel/mm/vmm/{addr_space,map,pdt,fault}.go) to the spec's VMEM_MAX-sized
// table of independently lockable address spaces (§3 VirtualMemorySpace).
package vmem

import (
	"kmicro/kernel"
	"kmicro/kernel/cpu"
	"kmicro/kernel/hal/mmu"
	"kmicro/kernel/mem"
	"kmicro/kernel/sync"
)

// Handle identifies an entry in the vmem table.
type Handle int

// VmemNull is returned when no handle is available.
const VmemNull = Handle(-1)

// Root is vmem index 0: the special, non-destroyable address space whose
// kernel-range PDEs every other vmem links to at create time (§3).
const Root = Handle(0)

const (
	dirBits   = mem.VaddrBits - mem.PgtabShift
	dirLen    = 1 << dirBits
	tableBits = mem.PgtabShift - mem.PageShift
	tableLen  = 1 << tableBits
)

func pdeIndex(vaddr uintptr) int { return int(vaddr>>mem.PgtabShift) & (dirLen - 1) }
func pteIndex(vaddr uintptr) int { return int(vaddr>>mem.PageShift) & (tableLen - 1) }

func isUserRange(vaddr uintptr) bool {
	return vaddr >= mem.UserBaseVirt && vaddr < mem.UserEndVirt
}

type pageTable struct {
	entries [tableLen]mmu.PTE
}

type space struct {
	inUse     bool
	dir       [dirLen]mmu.PDE
	tables    [dirLen]*pageTable
	userCount int
	lock      sync.Spinlock
}

var (
	table    [mem.VmemMax]space
	tableLck sync.Spinlock

	flushEntryFn = cpu.FlushTLBEntry

	errNoVmem        = &kernel.Error{Module: "vmem", Message: "vmem table is full"}
	errInvalidHandle = &kernel.Error{Module: "vmem", Message: "invalid vmem handle"}
	errRootProtected = &kernel.Error{Module: "vmem", Message: "the root vmem cannot be destroyed"}
	errBusy          = &kernel.Error{Module: "vmem", Message: "vmem has user pages mapped"}
	errNotUserRange  = &kernel.Error{Module: "vmem", Message: "address is outside the user range"}
	errUnsupportedSize = &kernel.Error{Module: "vmem", Message: "only PAGE_SIZE attachments are supported"}
	errNotMapped     = &kernel.Error{Module: "vmem", Message: "address is not mapped"}
	errAlreadyMapped = &kernel.Error{Module: "vmem", Message: "address is already mapped"}
)

// Init resets vmem 0, the root address space, to an in-use entry with an
// empty page directory; it installs no kernel-range PDEs itself. Create
// copies whatever kernel-range PDEs and page-table pointers the root holds
// into every vmem created afterwards (§3, §4.7).
func Init() {
	tableLck.Acquire()
	defer tableLck.Release()

	table[Root] = space{inUse: true}
}

func valid(h Handle) bool {
	return h >= 0 && int(h) < mem.VmemMax
}

// Create allocates a new address space, linking its kernel-range PDEs to the
// root vmem's so kernel mappings are shared (§4.7 invariant 1).
func Create() (Handle, *kernel.Error) {
	tableLck.Acquire()
	defer tableLck.Release()

	for i := 1; i < mem.VmemMax; i++ {
		if !table[i].inUse {
			table[i] = space{inUse: true}
			root := &table[Root]
			for d := 0; d < dirLen; d++ {
				if !isUserRangeDir(d) {
					table[i].dir[d] = root.dir[d]
					table[i].tables[d] = root.tables[d]
				}
			}
			return Handle(i), nil
		}
	}

	return VmemNull, errNoVmem
}

func isUserRangeDir(d int) bool {
	base := uintptr(d) << mem.PgtabShift
	return base >= mem.UserBaseVirt && base < mem.UserEndVirt
}

// Destroy releases vmem h. It refuses to destroy the root vmem and refuses
// to destroy a busy vmem, i.e. one with at least one user page still mapped
// (§3, §8 testable property 6).
func Destroy(h Handle) *kernel.Error {
	if !valid(h) {
		return errInvalidHandle
	}
	if h == Root {
		return errRootProtected
	}

	tableLck.Acquire()
	defer tableLck.Release()

	s := &table[h]
	if !s.inUse {
		return errInvalidHandle
	}
	if s.userCount > 0 {
		return errBusy
	}

	table[h] = space{}
	return nil
}

// getSpace returns the space for h if it is a live vmem.
func getSpace(h Handle) (*space, *kernel.Error) {
	if !valid(h) {
		return nil, errInvalidHandle
	}
	s := &table[h]
	if !s.inUse {
		return nil, errInvalidHandle
	}
	return s, nil
}

func (s *space) ensureTable(d int) *pageTable {
	if s.tables[d] == nil {
		s.tables[d] = &pageTable{}
		s.dir[d].SetFlags(mmu.FlagPresent | mmu.FlagWritable | mmu.FlagUser)
	}
	return s.tables[d]
}

func permFlags(w, x bool) mmu.Flag {
	f := mmu.FlagPresent | mmu.FlagUser
	if w {
		f |= mmu.FlagWritable
	}
	if x {
		f |= mmu.FlagExecutable
	}
	return f
}

// mapLocked installs frame at vaddr in s with the given permissions,
// returning errAlreadyMapped if vaddr is already present.
func (s *space) mapLocked(vaddr uintptr, frame mem.Frame, w, x bool) *kernel.Error {
	d, i := pdeIndex(vaddr), pteIndex(vaddr)
	pt := s.ensureTable(d)

	if pt.entries[i].IsPresent() {
		return errAlreadyMapped
	}

	var pte mmu.PTE
	pte.SetFlags(permFlags(w, x))
	if !pte.FrameSet(frame) {
		return &kernel.Error{Module: "vmem", Message: "frame number out of range"}
	}
	pt.entries[i] = pte
	s.userCount++
	flushEntryFn(vaddr)
	return nil
}

// Map installs an explicit frame at vaddr in vmem h with the given access
// (§4.7 vmem_map). Only PAGE_SIZE mappings are supported.
func Map(h Handle, vaddr uintptr, frame mem.Frame, size mem.Size, w, x bool) *kernel.Error {
	if size != mem.PageSize {
		return errUnsupportedSize
	}
	if !isUserRange(vaddr) {
		return errNotUserRange
	}

	s, err := getSpace(h)
	if err != nil {
		return err
	}

	s.lock.Acquire()
	defer s.lock.Release()
	return s.mapLocked(vaddr, frame, w, x)
}

// Attach allocates a fresh frame and installs it as a read-write user page
// at vaddr (§4.7 vmem_attach). Only PAGE_SIZE attachments are supported.
func Attach(h Handle, vaddr uintptr, size mem.Size) *kernel.Error {
	if size != mem.PageSize {
		return errUnsupportedSize
	}
	if !isUserRange(vaddr) {
		return errNotUserRange
	}

	s, err := getSpace(h)
	if err != nil {
		return err
	}

	frame, ferr := mem.AllocFrame()
	if ferr != nil {
		return ferr
	}

	s.lock.Acquire()
	defer s.lock.Release()
	if err := s.mapLocked(vaddr, frame, true, false); err != nil {
		return err
	}
	return nil
}

// Unmap removes the mapping at vaddr in vmem h, returning the frame that was
// mapped there (or mem.FrameNull if vaddr was not mapped). It invalidates
// the TLB entry so a subsequent access faults (§8 testable property 12).
func Unmap(h Handle, vaddr uintptr) (mem.Frame, *kernel.Error) {
	if !isUserRange(vaddr) {
		return mem.FrameNull, errNotUserRange
	}

	s, err := getSpace(h)
	if err != nil {
		return mem.FrameNull, err
	}

	s.lock.Acquire()
	defer s.lock.Release()

	d, i := pdeIndex(vaddr), pteIndex(vaddr)
	pt := s.tables[d]
	if pt == nil || !pt.entries[i].IsPresent() {
		return mem.FrameNull, errNotMapped
	}

	frame := pt.entries[i].FrameGet()
	mmu.Clear(&pt.entries[i])
	s.userCount--
	flushEntryFn(vaddr)
	return frame, nil
}

// Ctrl updates the access permissions of the page already mapped at vaddr
// (§4.7 upage_ctrl).
func Ctrl(h Handle, vaddr uintptr, w, x bool) *kernel.Error {
	if !isUserRange(vaddr) {
		return errNotUserRange
	}

	s, err := getSpace(h)
	if err != nil {
		return err
	}

	s.lock.Acquire()
	defer s.lock.Release()

	d, i := pdeIndex(vaddr), pteIndex(vaddr)
	pt := s.tables[d]
	if pt == nil || !pt.entries[i].IsPresent() {
		return errNotMapped
	}

	frame := pt.entries[i].FrameGet()
	var pte mmu.PTE
	pte.SetFlags(permFlags(w, x))
	pte.FrameSet(frame)
	pt.entries[i] = pte
	flushEntryFn(vaddr)
	return nil
}

// Info reports the current mapping at vaddr (§4.7 upage_info).
func Info(h Handle, vaddr uintptr) (frame mem.Frame, writable, executable bool, err *kernel.Error) {
	if !isUserRange(vaddr) {
		return mem.FrameNull, false, false, errNotUserRange
	}

	s, serr := getSpace(h)
	if serr != nil {
		return mem.FrameNull, false, false, serr
	}

	s.lock.Acquire()
	defer s.lock.Release()

	d, i := pdeIndex(vaddr), pteIndex(vaddr)
	pt := s.tables[d]
	if pt == nil || !pt.entries[i].IsPresent() {
		return mem.FrameNull, false, false, errNotMapped
	}

	pte := pt.entries[i]
	return pte.FrameGet(), pte.IsWrite(), pte.IsExec(), nil
}
