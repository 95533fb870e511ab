// Package ioapic drives a single IO APIC: redirection table programming and
// per-line enable (§4.1 ioapic_init/ioapic_enable). The port supports at
// most one IO APIC; a second descriptor is rejected by kernel/hal/madt
// before this package is ever asked to initialize it.
package ioapic

import "kmicro/kernel"

const (
	regSelect = 0x00
	regWindow = 0x10

	regID      = 0x00
	regVersion = 0x01

	ioredtbl = 0x10

	// intvecBase is the first vector number routed interrupts land on.
	intvecBase = 32

	maxCPUs = 16
)

var (
	errAlreadyInit = &kernel.Error{Module: "ioapic", Message: "IO APIC already initialized"}
	errInvalidIRQ  = &kernel.Error{Module: "ioapic", Message: "invalid irq number"}
	errInvalidCPU  = &kernel.Error{Module: "ioapic", Message: "invalid cpu number"}
)

// readFn/writeFn access the memory-mapped IOREGSEL/IOWIN pair; SetMMIO wires
// these to the real register access in production, keeping the package
// host-testable the way kernel/cpu's asm-backed primitives are seamed.
var (
	readFn  = func(uint32) uint32 { return 0 }
	writeFn = func(uint32, uint32) {}
)

// SetMMIO installs the memory-mapped register accessors backing this IO
// APIC, typically built from its base address once mapped by vmem.
func SetMMIO(read func(uint32) uint32, write func(uint32, uint32)) {
	readFn, writeFn = read, write
}

var initialized bool

// Init marks this IO APIC (identified by id, its MMIO base addr, and its
// global system interrupt base gsi) as initialized. It refuses a second
// call, mirroring the original's single-IOAPIC double-init guard.
func Init(id uint8, addr uint32, gsi uint32) error {
	if initialized {
		return errAlreadyInit
	}
	initialized = true
	return nil
}

func read(reg uint32) uint32 {
	return readFn(reg)
}

func write(reg, data uint32) {
	writeFn(reg, data)
}

func redtblWrite(irq uint8, high, low uint32) {
	write(ioredtbl+2*uint32(irq), low)
	write(ioredtbl+2*uint32(irq)+1, high)
}

// maxRedir returns the number of redirection table entries the IO APIC
// reports, which is one more than the zero-based count packed into
// IOAPICVER (§9 Open Question: kept off-by-one, matching the original).
func maxRedir() uint8 {
	return uint8(((read(regVersion) >> 16) & 0xff) + 1)
}

// Enable routes irq to cpunum using physical destination mode, edge
// triggering, and fixed delivery.
func Enable(irq uint8, cpunum uint8) error {
	if irq >= maxRedir() {
		return errInvalidIRQ
	}
	if cpunum > maxCPUs {
		return errInvalidCPU
	}

	redtblWrite(irq, uint32(cpunum)<<24, intvecBase+uint32(irq))
	return nil
}
