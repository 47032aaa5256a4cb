package heap

import (
	"unsafe"

	"memkernel/kernel"
	"memkernel/kernel/mem"
	"memkernel/kernel/mem/pmm"
)

// classSizes are the heap's fixed size classes (spec.md §4.4). Every small
// allocation is rounded up to the smallest class that fits it.
var classSizes = [...]uintptr{16, 32, 64, 128, 256, 512, 1024, 2048}

// classForSize returns the index of the smallest class able to hold size
// bytes, or -1 if size exceeds every class (a large allocation).
func classForSize(size uintptr) int {
	for i, s := range classSizes {
		if size <= s {
			return i
		}
	}
	return -1
}

// heapSlab is a page-sized, page-aligned block carved into objectCount
// objects of one size class, linked into its class's singly-linked list.
// Per spec.md §4.4 this is heap-local: it mirrors kernel/mem/slab's
// intrusive layout but does not go through the generic cache facility, so
// it carries no typed Go pointers either (same raw-address discipline as
// kernel/mem/pmm's freeNode).
type heapSlab struct {
	next uintptr

	frame pmm.Frame

	freeHead uintptr

	usedObjects uint32
	objectCount uint32

	objectBase uintptr
}

var heapSlabHeaderSize = unsafe.Sizeof(heapSlab{})

func heapSlabAt(addr uintptr) *heapSlab {
	return (*heapSlab)(unsafe.Pointer(addr))
}

// class is the per-size-class state: the object size and the head of its
// singly-linked slab list. The head slab is never released to the PMM
// while empty (spec.md §4.4: "keep one warm slab per class"); every other
// empty slab in the list is.
type class struct {
	size uintptr
	head uintptr
}

func objectsPerHeapSlab(objectSize uintptr) uint32 {
	available := uintptr(mem.PageSize) - heapSlabHeaderSize
	overhead := unsafe.Sizeof(uintptr(0))
	count := available / (objectSize + overhead)
	if count < 1 {
		return 1
	}
	return uint32(count)
}

// newHeapSlab allocates one page from the PMM (via allocPages(1)) and
// carves it into objectsPerHeapSlab(classSize) free objects, linked with
// an intrusive next-pointer exactly like kernel/mem/slab's default layout.
func (h *Heap) newHeapSlab(classSize uintptr) (uintptr, *kernel.Error) {
	frame, err := h.allocPages(1)
	if err != nil {
		return 0, ErrOutOfMemory
	}

	slabAddr := h.hhdmOffset + frame.Address()
	kernel.Memset(slabAddr, 0, uintptr(mem.PageSize))

	hs := heapSlabAt(slabAddr)
	hs.frame = frame
	hs.objectCount = objectsPerHeapSlab(classSize)
	hs.objectBase = slabAddr + heapSlabHeaderSize

	var head uintptr
	for i := int(hs.objectCount) - 1; i >= 0; i-- {
		obj := hs.objectBase + uintptr(i)*classSize
		*(*uintptr)(unsafe.Pointer(obj)) = head
		head = obj
	}
	hs.freeHead = head

	return slabAddr, nil
}
