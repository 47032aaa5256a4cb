package vmm

import "memkernel/kernel"

var (
	// ErrOutOfMemory is returned when an intermediate page table frame
	// cannot be allocated from the PMM.
	ErrOutOfMemory = &kernel.Error{Module: "vmm", Message: "out of memory while allocating page table"}

	// ErrInvalidMapping is returned by Translate when the address is not
	// mapped: an intermediate table along the walk or the leaf entry is
	// absent. Unmap does not return it; it warns and returns nil.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address is not mapped"}

	// ErrHugePageConflict is returned by Map when its walk reaches a huge
	// PD entry while looking for a 4 KiB leaf. MapHuge does not return it:
	// it overwrites a present PD entry with a warning.
	ErrHugePageConflict = &kernel.Error{Module: "vmm", Message: "huge page mapping conflicts with 4KiB walk"}

	// ErrMisalignedHugePage is returned by MapHuge when either address
	// is not 2 MiB aligned.
	ErrMisalignedHugePage = &kernel.Error{Module: "vmm", Message: "huge page mapping requires 2MiB aligned addresses"}

	// ErrProtectedAddressSpace is returned when destroying the kernel's
	// own address space is attempted.
	ErrProtectedAddressSpace = &kernel.Error{Module: "vmm", Message: "refusing to destroy the kernel address space"}
)
