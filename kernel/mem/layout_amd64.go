// +build amd64

package mem

const (
	// WordBits is the number of bits in the machine word used to back the
	// frame allocator's bitmap (§4.5: "a bitmap of length NUM_FRAMES /
	// WORD_BITS").
	WordBits = 64

	// NumFrames is the total number of physical page frames this port
	// tracks. Chosen so the frame bitmap fits comfortably in a handful of
	// kernel pages; a real board would read this from the memory map
	// instead of hard-coding it.
	NumFrames = 1 << 16

	// reservedFrames is the number of frames booked at boot for the
	// kernel image and kernel pool ranges below (§4.5).
	reservedFrames = (KernelEndPhys-KernelBasePhys)/(1<<PageShift) + (KpoolEndPhys-KpoolBasePhys)/(1<<PageShift)

	// NumUframes is the number of frames available to user allocations
	// once the boot-reserved ranges below have been booked out of
	// NumFrames (§8 testable property 2).
	NumUframes = NumFrames - reservedFrames

	// KernelBasePhys/KernelEndPhys bound the identity-mapped physical
	// range holding kernel code and data (§6).
	KernelBasePhys = 0x00100000
	KernelEndPhys  = 0x00400000

	// KpoolBasePhys/KpoolEndPhys bound the physical range backing the
	// kernel page pool (§6, §4.6).
	KpoolBasePhys = 0x00400000
	KpoolEndPhys  = 0x00800000

	// KpoolPages is the number of pages handed out by kernel/mem/kpool.
	KpoolPages = (KpoolEndPhys - KpoolBasePhys) / (1 << PageShift)

	// UserBaseVirt/UserEndVirt bound the user-space virtual range (§6).
	// Both ends must be page-table aligned, i.e. a multiple of the span
	// covered by a single page-directory entry.
	UserBaseVirt = 0x80000000
	UserEndVirt  = 0xc0000000

	// ProcessMax is the size of the fixed process table; slot 0 is the
	// kernel process (§3 Process).
	ProcessMax = 64

	// ThreadMax is the size of the fixed thread table.
	ThreadMax = 256

	// VmemMax is the size of the fixed address-space handle table (§3
	// VirtualMemorySpace, §4.7).
	VmemMax = ProcessMax

	// IdentityMax is the size of the fixed identity table (§3 Identity).
	IdentityMax = ProcessMax
)
