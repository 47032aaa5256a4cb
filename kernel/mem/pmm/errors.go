package pmm

import "memkernel/kernel"

var (
	// ErrOutOfMemory is returned when no free block is available at any
	// splittable order.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of memory"}

	// ErrInvalidAddress is returned when an address passed to Free is
	// below the protected low region or beyond the bitmap's coverage.
	ErrInvalidAddress = &kernel.Error{Module: "pmm", Message: "address outside of managed range"}

	// ErrInvalidCount is returned when a page count is zero or exceeds
	// the largest representable order (2^maxOrder pages).
	ErrInvalidCount = &kernel.Error{Module: "pmm", Message: "invalid page count"}

	// ErrDoubleFree names the condition of freeing a block whose frames
	// are already marked free in the bitmap. FreeOrder does not return it:
	// it logs the double free and returns nil, leaving state unchanged.
	ErrDoubleFree = &kernel.Error{Module: "pmm", Message: "double free of physical frame"}
)
