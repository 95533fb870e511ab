// +build amd64

package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// VaddrBits is the number of usable bits in a virtual address on this
	// architecture. Frame numbers that would require more than
	// VaddrBits-PageShift bits to encode are rejected by the PTE/PDE frame
	// setters (§4.1).
	VaddrBits = 32

	// PgtabShift is log2 of the number of page-table levels' worth of bits
	// consumed by a single page-directory entry's span.
	PgtabShift = 22
)
