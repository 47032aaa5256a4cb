// Package kmain wires the three memory-management components into the
// kernel's boot sequence: the physical frame allocator, the virtual
// memory manager, and the slab/heap allocators built on top of them.
// Grounded on the teacher's own kernel/kmain/kmain.go sequential
// init-or-panic chain; every subsystem this specification does not own
// (HAL, TTY, ACPI, the Go runtime shim) is dropped rather than stubbed,
// since those were never brought into this repository.
package kmain

import (
	"memkernel/kernel"
	"memkernel/kernel/boot"
	"memkernel/kernel/kfmt"
	"memkernel/kernel/mem/heap"
	"memkernel/kernel/mem/pmm"
	"memkernel/kernel/mem/slab"
	"memkernel/kernel/mem/vmm"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// PMM, VMM and Heap are the live memory manager instances Kmain wires up.
// Exported so later-booting subsystems (none of which this repository
// owns) can obtain handles the same way the teacher's allocator/vmm
// packages expose process-wide singletons.
var (
	PMM  pmm.Buddy
	VMM  *vmm.Manager
	Heap *heap.Heap
)

// Kmain is the memory manager's entry point: it is invoked by the
// architecture's early boot assembly once a stack and a Limine-parsed
// boot.Info are available. Kmain is not expected to return; if it does,
// it panics rather than falling off the end (//go:noinline preserves that
// path the same way the teacher's does).
//
//go:noinline
func Kmain(info boot.Info) {
	var err *kernel.Error

	if err = PMM.Init(info.MemoryMap, info.HHDMOffset); err != nil {
		kfmt.Panic(err)
	} else if VMM, err = bootVMM(info); err != nil {
		kfmt.Panic(err)
	} else if Heap, err = bootHeap(info); err != nil {
		kfmt.Panic(err)
	} else if err = bootGenericCaches(info); err != nil {
		kfmt.Panic(err)
	}

	kfmt.Printf("[kmain] memory manager ready\n")
	kfmt.Panic(errKmainReturned)
}

func bootVMM(info boot.Info) (*vmm.Manager, *kernel.Error) {
	m := vmm.New(info.HHDMOffset, PMM.AllocPage, PMM.FreePage)
	if err := m.Init(info); err != nil {
		return nil, err
	}
	return m, nil
}

func bootHeap(info boot.Info) (*heap.Heap, *kernel.Error) {
	return heap.New(info.HHDMOffset, PMM.AllocPages, PMM.FreePages), nil
}

// genericCache64 is a representative kernel-internal object cache,
// registered at boot the way real subsystems (task structs, VFS inodes,
// ...) would each bring their own: none of those subsystems belong to
// this specification, so only the cache facility itself is exercised
// here.
var genericCache64 *slab.Cache

func bootGenericCaches(info boot.Info) *kernel.Error {
	genericCache64 = slab.NewCache("generic-64", 64, 8, 0, info.HHDMOffset, PMM.AllocPage, PMM.FreePage)
	return nil
}
