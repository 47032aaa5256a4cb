//go:build amd64

package mem

const (
	// PointerShift is log2(unsafe.Sizeof(uintptr(0))); the machine word
	// size for this architecture is (1 << PointerShift) bytes.
	PointerShift = 3

	// PageShift is log2(PageSize); shifting a physical address right by
	// PageShift yields its frame number and vice versa.
	PageShift = 12

	// PageSize is the base page size for this architecture.
	PageSize = Size(1 << PageShift)

	// HugePageShift is log2(HugePageSize).
	HugePageShift = 21

	// HugePageSize is the size of a large (2 MiB) page, valid only at the
	// page-directory level.
	HugePageSize = Size(1 << HugePageShift)
)
