package vmm

import (
	"memkernel/kernel"
	"memkernel/kernel/boot"
	"memkernel/kernel/kfmt"
	"memkernel/kernel/mem"
)

// Init builds the kernel's own address space from the bootloader-reported
// memory map and switches to it: KernelAndModules regions are mapped at
// their linked virtual address using the kernel slide, Framebuffer regions
// are identity-mapped, and every region (regardless of type) additionally
// gets a direct-map entry at phys+hhdmOffset, matching the teacher's
// kmain init-or-panic sequencing (spec.md §4.2, §6).
func (m *Manager) Init(info boot.Info) *kernel.Error {
	pml4, err := m.allocTable()
	if err != nil {
		return err
	}
	m.kernelPML4 = pml4

	pageSize := uint64(mem.PageSize)

	var mapErr *kernel.Error
	info.MemoryMap.Visit(func(e *boot.MemoryMapEntry) bool {
		base := e.Base &^ (pageSize - 1)
		end := (e.End() + pageSize - 1) &^ (pageSize - 1)
		pageCount := (end - base) / pageSize
		if pageCount == 0 {
			return true
		}

		flags := FlagWritable
		switch e.Type {
		case boot.KernelAndModules:
			virt := uintptr(base) + info.Kernel.Slide()
			if err := m.MapRange(pml4, virt, uintptr(base), pageCount, flags); err != nil {
				mapErr = err
				return false
			}
		case boot.Framebuffer:
			flags |= FlagWriteThrough | FlagCacheDisable
			if err := m.MapRange(pml4, uintptr(base), uintptr(base), pageCount, flags); err != nil {
				mapErr = err
				return false
			}
		}

		hhdmVirt := info.HHDMOffset + uintptr(base)
		if err := m.MapRange(pml4, hhdmVirt, uintptr(base), pageCount, flags); err != nil {
			mapErr = err
			return false
		}
		return true
	})
	if mapErr != nil {
		return mapErr
	}

	m.Switch(pml4)
	kfmt.Printf("[vmm] kernel address space ready, pml4=0x%x\n", pml4.Address())
	return nil
}

// KernelPML4 returns the frame backing the kernel's own PML4, the root
// every CreateAddressSpace call shares its high half with.
func (m *Manager) KernelPML4() uintptr {
	return m.kernelPML4.Address()
}
