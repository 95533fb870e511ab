package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Outb writes a single byte to the given I/O port. Used by hal/pic and
// hal/ioapic to program the interrupt controllers.
func Outb(port uint16, value uint8)

// Inb reads a single byte from the given I/O port.
func Inb(port uint16) uint8

// Outl writes a 32-bit dword to the given I/O port. Used by hal/ioapic,
// which is programmed through a 32-bit index/data register pair.
func Outl(port uint16, value uint32)

// Inl reads a 32-bit dword from the given I/O port.
func Inl(port uint16) uint32

// IOWait performs a short delay by writing to an unused I/O port. Legacy
// PICs require a brief settling period between successive writes.
func IOWait()

// CoreID returns the id of the CPU core executing this code. Used by
// hal/core to index the per-core bootstrap slot table.
func CoreID() uint32

// StartCore is the hook for starting the application processor identified
// by coreID at entry. On this port it returns without signalling the core,
// so the target core does not begin executing entry.
func StartCore(coreID uint32, entry uintptr)

// Sleep places the calling core in a low-power wait state until the next
// interrupt arrives.
func Sleep()

// Reset is the per-core non-returning reset capability named in §9 (the
// or1k_core_reset/k1b equivalents): it parks the calling core in the same
// halt loop Halt uses, since this port has no separate warm-reset vector.
func Reset()

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
