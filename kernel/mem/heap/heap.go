// Package heap implements the kernel's general-purpose allocator: small
// requests (<= 2048 bytes) are routed to per-size-class slab pools built
// directly on the PMM, and large requests are satisfied with a multi-frame
// PMM block carrying a one-word size header (spec.md §4.4).
package heap

import (
	"unsafe"

	"memkernel/kernel"
	"memkernel/kernel/kfmt"
	"memkernel/kernel/mem"
	"memkernel/kernel/mem/pmm"
	"memkernel/kernel/sync"
)

// headerSize is the width of the large-allocation page-count header that
// precedes every pointer Alloc hands back for a large request.
const headerSize = unsafe.Sizeof(uintptr(0))

// maxLargePages mirrors kernel/mem/pmm's maxOrder: the PMM itself cannot
// hand out a contiguous run longer than 2^11 frames, so neither can the
// heap's large-allocation path (spec.md's large-header invariant: stored
// count in [1, 2048]).
const maxLargePages = 2048

// AllocPagesFn reserves count contiguous frames from the PMM.
type AllocPagesFn func(count uint64) (pmm.Frame, *kernel.Error)

// FreePagesFn releases count contiguous frames previously obtained from an
// AllocPagesFn.
type FreePagesFn func(frame pmm.Frame, count uint64) *kernel.Error

// Heap is the kernel's general allocator. All operations take a single
// heap spinlock (spec.md §5).
type Heap struct {
	lock sync.Spinlock

	hhdmOffset uintptr
	allocPages AllocPagesFn
	freePages  FreePagesFn

	classes [len(classSizes)]class
}

// New constructs a Heap backed by the given HHDM offset and PMM
// frame-range allocator/deallocator pair.
func New(hhdmOffset uintptr, allocPages AllocPagesFn, freePages FreePagesFn) *Heap {
	h := &Heap{hhdmOffset: hhdmOffset, allocPages: allocPages, freePages: freePages}
	for i, s := range classSizes {
		h.classes[i].size = s
	}
	return h
}

// Alloc returns a zeroed block of at least size bytes, or an error if the
// PMM cannot supply the backing memory. Alloc(0) returns a nil pointer
// without error, mirroring the teacher's treatment of zero-length
// requests.
func (h *Heap) Alloc(size uintptr) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, nil
	}
	if idx := classForSize(size); idx >= 0 {
		return h.allocSmall(idx)
	}
	return h.allocLarge(size)
}

func (h *Heap) allocSmall(idx int) (uintptr, *kernel.Error) {
	h.lock.Acquire()
	defer h.lock.Release()

	c := &h.classes[idx]
	for cur := c.head; cur != 0; cur = heapSlabAt(cur).next {
		hs := heapSlabAt(cur)
		if hs.freeHead != 0 {
			return h.detachFrom(hs, c.size), nil
		}
	}

	addr, err := h.newHeapSlab(c.size)
	if err != nil {
		return 0, err
	}
	hs := heapSlabAt(addr)
	hs.next = c.head
	c.head = addr

	return h.detachFrom(hs, c.size), nil
}

func (h *Heap) detachFrom(hs *heapSlab, objectSize uintptr) uintptr {
	obj := hs.freeHead
	hs.freeHead = *(*uintptr)(unsafe.Pointer(obj))
	hs.usedObjects++
	kernel.Memset(obj, 0, objectSize)
	return obj
}

func (h *Heap) allocLarge(size uintptr) (uintptr, *kernel.Error) {
	total := size + headerSize
	pages := (uint64(total) + uint64(mem.PageSize) - 1) / uint64(mem.PageSize)
	if pages == 0 {
		pages = 1
	}
	if pages > maxLargePages {
		return 0, ErrOutOfMemory
	}

	h.lock.Acquire()
	defer h.lock.Release()

	frame, err := h.allocPages(pages)
	if err != nil {
		return 0, ErrOutOfMemory
	}

	blockAddr := h.hhdmOffset + frame.Address()
	kernel.Memset(blockAddr, 0, uintptr(pages)*uintptr(mem.PageSize))
	*(*uintptr)(unsafe.Pointer(blockAddr)) = uintptr(pages)
	return blockAddr + headerSize, nil
}

// Free releases ptr, previously obtained from Alloc. A small-object
// pointer is returned to its owning slab's free list and the slab is
// released to the PMM if it becomes empty and is not its class's retained
// head slab. A large-object pointer is identified by its absence from
// every class's slabs: the page-count header is read and validated before
// the backing frames are released.
func (h *Heap) Free(ptr uintptr) *kernel.Error {
	if ptr == 0 {
		return nil
	}

	h.lock.Acquire()

	for i := range h.classes {
		c := &h.classes[i]
		var prev uintptr
		for cur := c.head; cur != 0; cur = heapSlabAt(cur).next {
			hs := heapSlabAt(cur)
			if ptr < cur || ptr >= cur+uintptr(mem.PageSize) {
				prev = cur
				continue
			}

			if (ptr-hs.objectBase)%c.size != 0 {
				h.lock.Release()
				return ErrInvalidPointer
			}

			*(*uintptr)(unsafe.Pointer(ptr)) = hs.freeHead
			hs.freeHead = ptr
			hs.usedObjects--

			if hs.usedObjects == 0 && cur != c.head {
				if prev != 0 {
					heapSlabAt(prev).next = hs.next
				}
				h.freePages(hs.frame, 1)
			}

			h.lock.Release()
			return nil
		}
	}

	h.lock.Release()
	return h.freeLarge(ptr)
}

func (h *Heap) freeLarge(ptr uintptr) *kernel.Error {
	headerAddr := ptr - headerSize
	pages := *(*uintptr)(unsafe.Pointer(headerAddr))
	if pages < 1 || pages > maxLargePages {
		kfmt.Panic(ErrCorruption)
		return ErrCorruption
	}

	h.lock.Acquire()
	defer h.lock.Release()

	physAddr := headerAddr - h.hhdmOffset
	frame := pmm.FrameFromAddress(physAddr)
	return h.freePages(frame, uint64(pages))
}

// sizeOf returns the usable size of a previously-allocated block: the
// class size if it is slab-owned, otherwise pages*PageSize-headerSize.
func (h *Heap) sizeOf(ptr uintptr) uintptr {
	h.lock.Acquire()
	for i := range h.classes {
		c := &h.classes[i]
		for cur := c.head; cur != 0; cur = heapSlabAt(cur).next {
			if ptr >= cur && ptr < cur+uintptr(mem.PageSize) {
				h.lock.Release()
				return c.size
			}
		}
	}
	h.lock.Release()

	headerAddr := ptr - headerSize
	pages := *(*uintptr)(unsafe.Pointer(headerAddr))
	return pages*uintptr(mem.PageSize) - headerSize
}

// Realloc resizes the block at ptr to newSize, preserving min(old, new)
// bytes of content. A nil ptr behaves as Alloc; a zero newSize behaves as
// Free.
func (h *Heap) Realloc(ptr uintptr, newSize uintptr) (uintptr, *kernel.Error) {
	if ptr == 0 {
		return h.Alloc(newSize)
	}
	if newSize == 0 {
		return 0, h.Free(ptr)
	}

	oldSize := h.sizeOf(ptr)

	newPtr, err := h.Alloc(newSize)
	if err != nil {
		return 0, err
	}

	copySize := oldSize
	if newSize < copySize {
		copySize = newSize
	}
	kernel.Memcopy(ptr, newPtr, copySize)

	if err := h.Free(ptr); err != nil {
		return newPtr, err
	}
	return newPtr, nil
}
