package slab

import "memkernel/kernel"

var (
	// ErrOutOfMemory is returned when the backing PMM has no frame left to
	// grow a cache with.
	ErrOutOfMemory = &kernel.Error{Module: "slab", Message: "out of memory while allocating slab page"}

	// ErrCorruption marks the fatal condition where a freed pointer's slab
	// header does not belong to the cache it was freed through.
	ErrCorruption = &kernel.Error{Module: "slab", Message: "slab header does not match owning cache"}
)
