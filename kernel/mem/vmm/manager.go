// Package vmm implements the 4-level x86-64 page table manager: building
// and mutating PML4/PDPT/PD/PT hierarchies, translating addresses, and
// creating/destroying additional address spaces on top of the kernel's
// own. Every physical frame it touches is addressed through the HHDM
// (spec.md §9); there is no recursive self-mapping trick.
package vmm

import (
	"memkernel/kernel"
	"memkernel/kernel/kfmt"
	"memkernel/kernel/mem"
	"memkernel/kernel/mem/pmm"
)

// FrameAllocFn allocates a single physical frame, used for intermediate
// page table levels.
type FrameAllocFn func() (pmm.Frame, *kernel.Error)

// FrameFreeFn releases a single physical frame previously obtained from a
// FrameAllocFn.
type FrameFreeFn func(pmm.Frame) *kernel.Error

// pageMask / hugePageMask isolate the offset bits within a 4 KiB / 2 MiB
// page.
const (
	pageMask     = uintptr(mem.PageSize - 1)
	hugePageMask = uintptr(mem.HugePageSize - 1)
)

// Manager owns the kernel's top-level page table and provides the
// operations to build and mutate any address space rooted at a PML4 frame.
// Per spec.md §5 the VMM intentionally holds no lock of its own: callers
// must serialize edits to a single address space themselves.
type Manager struct {
	hhdmOffset uintptr

	allocFrame FrameAllocFn
	freeFrame  FrameFreeFn

	kernelPML4 pmm.Frame
}

// New constructs a Manager bound to the given HHDM offset and frame
// allocator/deallocator pair.
func New(hhdmOffset uintptr, allocFrame FrameAllocFn, freeFrame FrameFreeFn) *Manager {
	return &Manager{hhdmOffset: hhdmOffset, allocFrame: allocFrame, freeFrame: freeFrame}
}

func (m *Manager) zeroFrame(f pmm.Frame) {
	kernel.Memset(m.hhdmOffset+f.Address(), 0, uintptr(mem.PageSize))
}

// allocTable allocates and zero-initializes a frame to back a new
// intermediate page table.
func (m *Manager) allocTable() (pmm.Frame, *kernel.Error) {
	f, err := m.allocFrame()
	if err != nil {
		return pmm.InvalidFrame, ErrOutOfMemory
	}
	m.zeroFrame(f)
	return f, nil
}

// Map installs a 4 KiB mapping from virt to phys in the address space
// rooted at root, allocating any missing intermediate tables along the way.
// Both addresses are page-aligned downward if misaligned (with a warning).
// An existing present leaf mapping is overwritten, with a remap warning.
func (m *Manager) Map(root pmm.Frame, virt, phys uintptr, flags EntryFlag) *kernel.Error {
	if virt&pageMask != 0 || phys&pageMask != 0 {
		kfmt.Printf("[vmm] warning: misaligned map request virt=0x%x phys=0x%x, rounding down\n", virt, phys)
		virt &^= pageMask
		phys &^= pageMask
	}

	var err *kernel.Error
	m.walk(root, virt, func(level uint8, e *entry) bool {
		if level == 0 {
			if e.hasFlags(FlagPresent) {
				kfmt.Printf("[vmm] warning: remapping already-present page at 0x%x\n", virt)
			}
			*e = 0
			e.setFrame(pmm.FrameFromAddress(phys))
			e.setFlags(flags | FlagPresent)
			return false
		}

		if e.hasFlags(FlagHuge) {
			err = ErrHugePageConflict
			return false
		}

		if !e.hasFlags(FlagPresent) {
			newTable, allocErr := m.allocTable()
			if allocErr != nil {
				err = allocErr
				return false
			}
			*e = 0
			e.setFrame(newTable)
			e.setFlags(FlagPresent | FlagWritable | FlagUser)
		}
		return true
	})

	if err != nil {
		return err
	}

	invalidate(virt)
	return nil
}

// MapHuge installs a 2 MiB mapping at the PD level. Both addresses must
// already be 2 MiB aligned.
func (m *Manager) MapHuge(root pmm.Frame, virt, phys uintptr, flags EntryFlag) *kernel.Error {
	if virt&hugePageMask != 0 || phys&hugePageMask != 0 {
		return ErrMisalignedHugePage
	}

	var err *kernel.Error
	m.walk(root, virt, func(level uint8, e *entry) bool {
		if level == uint8(levelPD) {
			if e.hasFlags(FlagPresent) {
				kfmt.Printf("[vmm] warning: remapping already-present huge page at 0x%x\n", virt)
			}
			*e = 0
			e.setFrame(pmm.FrameFromAddress(phys))
			e.setFlags(flags | FlagPresent | FlagHuge)
			return false
		}

		if !e.hasFlags(FlagPresent) {
			newTable, allocErr := m.allocTable()
			if allocErr != nil {
				err = allocErr
				return false
			}
			*e = 0
			e.setFrame(newTable)
			e.setFlags(FlagPresent | FlagWritable | FlagUser)
		}
		return true
	})

	if err != nil {
		return err
	}

	invalidate(virt)
	return nil
}

// Unmap clears the leaf mapping for virt. If any intermediate table along
// the walk is absent, Unmap warns and returns without error (spec.md §4.2).
func (m *Manager) Unmap(root pmm.Frame, virt uintptr) *kernel.Error {
	virt &^= pageMask

	found := false
	m.walk(root, virt, func(level uint8, e *entry) bool {
		if level == 0 {
			e.clearFlags(FlagPresent)
			found = true
			return false
		}
		if !e.hasFlags(FlagPresent) {
			kfmt.Printf("[vmm] warning: unmap of 0x%x: intermediate table absent\n", virt)
			return false
		}
		if e.hasFlags(FlagHuge) {
			kfmt.Printf("[vmm] warning: unmap of 0x%x hit a huge page, ignoring\n", virt)
			return false
		}
		return true
	})

	if !found {
		return nil
	}

	invalidate(virt)
	return nil
}

// Translate returns the physical address virt currently maps to, or
// ErrInvalidMapping if it is not mapped. A 2 MiB huge mapping composes the
// physical base with the offset within the huge page.
func (m *Manager) Translate(root pmm.Frame, virt uintptr) (uintptr, *kernel.Error) {
	var (
		result uintptr
		err    = ErrInvalidMapping
	)

	m.walk(root, virt, func(level uint8, e *entry) bool {
		if !e.hasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if level == uint8(levelPD) && e.hasFlags(FlagHuge) {
			result = (e.physAddr() &^ hugePageMask) | (virt & hugePageMask)
			err = nil
			return false
		}

		if level == 0 {
			result = e.physAddr() | (virt & pageMask)
			err = nil
			return false
		}

		return true
	})

	if err != nil {
		return 0, err
	}
	return result, nil
}

// MapRange maps count contiguous 4 KiB pages starting at virt to phys.
func (m *Manager) MapRange(root pmm.Frame, virt, phys uintptr, count uint64, flags EntryFlag) *kernel.Error {
	pageSize := uintptr(mem.PageSize)
	for i := uint64(0); i < count; i++ {
		if err := m.Map(root, virt+uintptr(i)*pageSize, phys+uintptr(i)*pageSize, flags); err != nil {
			return err
		}
	}
	return nil
}

// fullFlushThreshold is the page count above which UnmapRange reloads CR3
// instead of issuing one invlpg per page (spec.md §4.2).
const fullFlushThreshold = 32

// UnmapRange unmaps count contiguous 4 KiB pages starting at virt. Beyond
// fullFlushThreshold pages it performs one full TLB flush (CR3 reload)
// instead of per-page invalidation.
func (m *Manager) UnmapRange(root pmm.Frame, virt uintptr, count uint64) *kernel.Error {
	pageSize := uintptr(mem.PageSize)
	bulk := count > fullFlushThreshold

	for i := uint64(0); i < count; i++ {
		v := virt + uintptr(i)*pageSize
		v &^= pageMask

		found := false
		m.walk(root, v, func(level uint8, e *entry) bool {
			if level == 0 {
				e.clearFlags(FlagPresent)
				found = true
				return false
			}
			if !e.hasFlags(FlagPresent) || e.hasFlags(FlagHuge) {
				return false
			}
			return true
		})

		if found && !bulk {
			invalidate(v)
		}
	}

	if bulk {
		flushAll()
	}
	return nil
}

// PreallocateRange ensures every page in [virt, virt+count*PageSize) is
// mapped, allocating a fresh frame for any page not already present and
// leaving already-present mappings untouched.
func (m *Manager) PreallocateRange(root pmm.Frame, virt uintptr, count uint64, flags EntryFlag) *kernel.Error {
	pageSize := uintptr(mem.PageSize)
	for i := uint64(0); i < count; i++ {
		v := virt + uintptr(i)*pageSize

		if phys, err := m.Translate(root, v); err == nil && phys != 0 {
			continue
		}

		frame, err := m.allocFrame()
		if err != nil {
			return err
		}
		if err := m.Map(root, v, frame.Address(), flags); err != nil {
			return err
		}
	}
	return nil
}

// CreateAddressSpace allocates a fresh PML4, shares the kernel's high half
// (indices 256-511) by verbatim entry copy, and leaves the low half empty.
func (m *Manager) CreateAddressSpace() (pmm.Frame, *kernel.Error) {
	newPML4, err := m.allocTable()
	if err != nil {
		return pmm.InvalidFrame, err
	}

	kernelTable := m.tableAt(m.kernelPML4)
	newTable := m.tableAt(newPML4)
	for i := 256; i < entriesPerTable; i++ {
		newTable[i] = kernelTable[i]
	}

	return newPML4, nil
}

// DestroyAddressSpace tears down every low-half (indices 0-255) table in
// root: every PT (unless its PD entry is huge), then every PD, then every
// PDPT, then the PML4 itself. It never frees leaf mapping frames; those
// remain the caller's responsibility. Refuses to destroy the kernel's own
// address space.
func (m *Manager) DestroyAddressSpace(root pmm.Frame) *kernel.Error {
	if root == m.kernelPML4 {
		return ErrProtectedAddressSpace
	}

	pml4 := m.tableAt(root)
	for i := 0; i < 256; i++ {
		pml4e := &pml4[i]
		if !pml4e.hasFlags(FlagPresent) {
			continue
		}
		if err := m.destroyPDPT(pml4e.frame()); err != nil {
			return err
		}
	}

	return m.freeFrame(root)
}

func (m *Manager) destroyPDPT(pdptFrame pmm.Frame) *kernel.Error {
	pdpt := m.tableAt(pdptFrame)
	for i := 0; i < entriesPerTable; i++ {
		pdpte := &pdpt[i]
		if !pdpte.hasFlags(FlagPresent) {
			continue
		}
		if err := m.destroyPD(pdpte.frame()); err != nil {
			return err
		}
	}
	return m.freeFrame(pdptFrame)
}

func (m *Manager) destroyPD(pdFrame pmm.Frame) *kernel.Error {
	pd := m.tableAt(pdFrame)
	for i := 0; i < entriesPerTable; i++ {
		pde := &pd[i]
		if !pde.hasFlags(FlagPresent) || pde.hasFlags(FlagHuge) {
			continue
		}
		if err := m.freeFrame(pde.frame()); err != nil {
			return err
		}
	}
	return m.freeFrame(pdFrame)
}

// Switch loads root into CR3, activating it as the current address space.
func (m *Manager) Switch(root pmm.Frame) {
	loadCR3(root.Address())
}
