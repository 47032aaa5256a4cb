// Package slab implements the kernel's slab allocator: named caches that
// carve PMM-backed pages into fixed-size objects, tracked by three
// doubly-linked slab lists (full/partial/empty) and freed objects tracked
// by either an intrusive freelist or an external bufctl array (spec.md
// §4.3).
package slab

import (
	"unsafe"

	"memkernel/kernel"
	"memkernel/kernel/kfmt"
	"memkernel/kernel/mem"
	"memkernel/kernel/mem/pmm"
	"memkernel/kernel/sync"
)

// CacheFlags configures a cache's slab layout.
type CacheFlags uint8

const (
	// FlagBufctl selects the external bufctl freelist layout instead of
	// the default intrusive one. Use it for caches whose objects must not
	// be overwritten while free.
	FlagBufctl CacheFlags = 1 << iota
)

// FrameAllocFn allocates a single page-sized frame for a new slab.
type FrameAllocFn func() (pmm.Frame, *kernel.Error)

// FrameFreeFn releases a frame previously obtained from a FrameAllocFn.
type FrameFreeFn func(pmm.Frame) *kernel.Error

// Cache is a named pool of same-sized objects, backed by PMM pages reached
// through the HHDM. Every method locks the cache's own spinlock; there is
// no lock-free path (spec.md §5: "one lock per slab cache").
type Cache struct {
	lock sync.Spinlock

	name       string
	objectSize uintptr
	align      uintptr
	flags      CacheFlags

	objectsPerSlab uint32

	full, partial, empty slabList

	hhdmOffset uintptr
	allocPage  FrameAllocFn
	freePage   FrameFreeFn

	registryNext, registryPrev *Cache
}

// NewCache constructs and registers a cache for fixed-size objects of
// objectSize bytes. align aligns the first object of each slab (0 means no
// special alignment beyond the natural word alignment of the header); the
// following objects are laid out at objectSize strides, so they share that
// alignment only when objectSize is a multiple of align.
func NewCache(name string, objectSize, align uintptr, flags CacheFlags, hhdmOffset uintptr, allocPage FrameAllocFn, freePage FrameFreeFn) *Cache {
	c := &Cache{
		name:       name,
		objectSize: objectSize,
		align:      align,
		flags:      flags,
		hhdmOffset: hhdmOffset,
		allocPage:  allocPage,
		freePage:   freePage,
	}
	c.objectsPerSlab = objectsPerSlab(objectSize, align, flags&FlagBufctl != 0)
	register(c)
	return c
}

// Alloc returns one object from the cache, growing it by one slab from the
// PMM if every existing slab is full. Objects of the default intrusive
// layout are zeroed; objects of a FlagBufctl cache are returned with
// whatever content they last held.
func (c *Cache) Alloc() (uintptr, *kernel.Error) {
	c.lock.Acquire()
	defer c.lock.Release()

	var slabAddr uintptr
	switch {
	case !c.partial.empty():
		slabAddr = c.partial.head
	case !c.empty.empty():
		slabAddr = c.empty.head
		c.empty.remove(slabAddr)
		c.partial.pushFront(slabAddr)
	default:
		addr, err := c.newSlab()
		if err != nil {
			return 0, err
		}
		slabAddr = addr
		c.partial.pushFront(slabAddr)
	}

	sh := headerAt(slabAddr)
	obj := c.detachOne(sh)
	sh.usedObjects++

	if c.flags&FlagBufctl == 0 {
		kernel.Memset(obj, 0, c.objectSize)
	}

	if sh.usedObjects == sh.objectCount {
		c.partial.remove(slabAddr)
		c.full.pushFront(slabAddr)
	}

	return obj, nil
}

// Free returns ptr, previously obtained from Alloc, to its owning slab.
// A pointer whose slab header does not record this cache as its owner is
// fatal corruption (spec.md §7): Free logs and halts rather than
// returning.
func (c *Cache) Free(ptr uintptr) *kernel.Error {
	slabAddr := ptr &^ (uintptr(mem.PageSize) - 1)
	sh := headerAt(slabAddr)
	if sh.cacheAddr != uintptr(unsafe.Pointer(c)) {
		kfmt.Panic(ErrCorruption)
		return ErrCorruption
	}

	c.lock.Acquire()
	defer c.lock.Release()

	if sh.usedObjects == 0 {
		kfmt.Printf("[slab] double free of object 0x%x in cache %s\n", ptr, c.name)
		return nil
	}

	wasFull := sh.usedObjects == sh.objectCount
	c.attachOne(sh, ptr)
	sh.usedObjects--

	switch {
	case wasFull:
		c.full.remove(slabAddr)
		if sh.usedObjects == 0 {
			c.retireToEmpty(slabAddr)
		} else {
			c.partial.pushFront(slabAddr)
		}
	case sh.usedObjects == 0:
		c.partial.remove(slabAddr)
		c.retireToEmpty(slabAddr)
	}

	return nil
}

// retireToEmpty places slabAddr on the empty list, keeping at most one
// empty slab per cache: if another empty slab is already retained, that
// older one is released to the PMM immediately and the most-recently-empty
// slab is kept instead (spec.md's "at least one empty slab" policy,
// resolved here as "exactly one").
func (c *Cache) retireToEmpty(slabAddr uintptr) {
	if !c.empty.empty() {
		surplus := c.empty.head
		c.empty.remove(surplus)
		c.destroySlab(surplus)
	}
	c.empty.pushFront(slabAddr)
}

// Destroy unlinks and releases every slab owned by the cache, then removes
// it from the global cache registry. Unlinking happens before any page is
// freed, per spec.md's REDESIGN FLAGS note on an earlier, buggy draft.
func (c *Cache) Destroy() {
	c.lock.Acquire()
	for _, list := range []*slabList{&c.full, &c.partial, &c.empty} {
		for !list.empty() {
			addr := list.head
			list.remove(addr)
			c.destroySlab(addr)
		}
	}
	c.lock.Release()

	unregister(c)
}
