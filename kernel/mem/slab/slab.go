package slab

import (
	"unsafe"

	"memkernel/kernel"
	"memkernel/kernel/mem"
	"memkernel/kernel/mem/pmm"
)

// slabHeader sits at the start of the 4 KiB page backing a slab. It holds
// no typed Go pointers: the page is reached through the HHDM, not through
// Go's managed heap, so every cross-reference is a raw address exactly
// like kernel/mem/pmm's freeNode (spec.md §9's intrusive-freelist note).
type slabHeader struct {
	cacheAddr uintptr // identity of the owning *Cache, for corruption checks
	next, prev uintptr // slabList links

	frame pmm.Frame

	freeHead uintptr // head of the free object (intrusive) or bufctl list

	usedObjects uint32
	objectCount uint32

	objectBase uintptr
	bufctlBase uintptr // 0 unless the owning cache uses FlagBufctl
}

var slabHeaderSize = unsafe.Sizeof(slabHeader{})

func headerAt(addr uintptr) *slabHeader {
	return (*slabHeader)(unsafe.Pointer(addr))
}

func alignUp(v, align uintptr) uintptr {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// objectsPerSlab computes how many fixed-size objects of objectSize fit in
// one page after the header and per-object bookkeeping overhead, per the
// capacity formula in spec.md §4.3. Capacity is always forced to at least
// one object.
func objectsPerSlab(objectSize, align uintptr, bufctlLayout bool) uint32 {
	objectBase := alignUp(slabHeaderSize, align)
	available := uintptr(mem.PageSize) - objectBase

	overhead := unsafe.Sizeof(uintptr(0))
	if bufctlLayout {
		overhead = bufctlSize
	}

	perObject := objectSize + overhead
	if perObject == 0 {
		return 1
	}

	count := available / perObject
	if count < 1 {
		return 1
	}
	return uint32(count)
}

// newSlab allocates a fresh page from the cache's PMM callback and carves it
// into c.objectsPerSlab objects, populating the free list (or bufctl
// array) over the remaining space.
func (c *Cache) newSlab() (uintptr, *kernel.Error) {
	frame, err := c.allocPage()
	if err != nil {
		return 0, ErrOutOfMemory
	}

	slabAddr := c.hhdmOffset + frame.Address()
	kernel.Memset(slabAddr, 0, uintptr(mem.PageSize))

	sh := headerAt(slabAddr)
	sh.cacheAddr = uintptr(unsafe.Pointer(c))
	sh.frame = frame
	sh.objectCount = c.objectsPerSlab
	sh.objectBase = alignUp(slabAddr+slabHeaderSize, c.align)

	if c.flags&FlagBufctl != 0 {
		bufctlBase := slabAddr + uintptr(mem.PageSize) - uintptr(sh.objectCount)*bufctlSize
		sh.bufctlBase = bufctlBase

		var head uintptr
		for i := int(sh.objectCount) - 1; i >= 0; i-- {
			bc := bufctlAt(bufctlBase + uintptr(i)*bufctlSize)
			bc.buffer = sh.objectBase + uintptr(i)*c.objectSize
			bc.parentSlab = slabAddr
			bc.next = head
			head = bufctlBase + uintptr(i)*bufctlSize
		}
		sh.freeHead = head
	} else {
		var head uintptr
		for i := int(sh.objectCount) - 1; i >= 0; i-- {
			obj := sh.objectBase + uintptr(i)*c.objectSize
			*(*uintptr)(unsafe.Pointer(obj)) = head
			head = obj
		}
		sh.freeHead = head
	}

	return slabAddr, nil
}

// destroySlab returns a slab's backing frame to the PMM. The slab must
// already be unlinked from every cache list.
func (c *Cache) destroySlab(slabAddr uintptr) {
	sh := headerAt(slabAddr)
	if err := c.freePage(sh.frame); err != nil {
		// The PMM already logs double-frees; nothing further to do here.
		_ = err
	}
}

// detachOne pops one object off a slab's free list, intrusive or bufctl
// depending on the owning cache's flags.
func (c *Cache) detachOne(sh *slabHeader) uintptr {
	if c.flags&FlagBufctl != 0 {
		bc := bufctlAt(sh.freeHead)
		sh.freeHead = bc.next
		return bc.buffer
	}

	obj := sh.freeHead
	sh.freeHead = *(*uintptr)(unsafe.Pointer(obj))
	return obj
}

// attachOne pushes ptr back onto a slab's free list.
func (c *Cache) attachOne(sh *slabHeader, ptr uintptr) {
	if c.flags&FlagBufctl != 0 {
		bc := bufctlAt(sh.bufctlBase + ((ptr - sh.objectBase) / c.objectSize) * bufctlSize)
		bc.next = sh.freeHead
		sh.freeHead = uintptr(unsafe.Pointer(bc))
		return
	}

	*(*uintptr)(unsafe.Pointer(ptr)) = sh.freeHead
	sh.freeHead = ptr
}
