package heap

import "memkernel/kernel"

var (
	// ErrOutOfMemory is returned when the PMM cannot supply a page (small
	// allocation) or contiguous frame run (large allocation).
	ErrOutOfMemory = &kernel.Error{Module: "heap", Message: "out of memory"}

	// ErrInvalidPointer is returned by Free (and Realloc, through Free)
	// when ptr lies inside one of the heap's slab pages but not on an
	// object boundary. A pointer outside every slab page is treated as a
	// large allocation and is not checked further than its header.
	ErrInvalidPointer = &kernel.Error{Module: "heap", Message: "pointer does not belong to this heap"}

	// ErrCorruption marks a large-allocation header whose stored page
	// count falls outside [1, 2048] (spec.md §7): fatal, logged and
	// halted rather than returned to the caller.
	ErrCorruption = &kernel.Error{Module: "heap", Message: "large allocation header out of range"}
)
