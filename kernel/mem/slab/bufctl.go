package slab

import "unsafe"

// bufctl is an external free-object control record, used by caches created
// with FlagBufctl instead of writing a next-pointer into the free object
// itself. An array of these lives at the tail of the slab page (spec.md
// §4.3) so that free objects are never touched by the allocator.
type bufctl struct {
	buffer     uintptr // address of the object this record tracks
	parentSlab uintptr // address of the owning slabHeader
	next       uintptr // address of the next free bufctl, 0 if none
}

const bufctlSize = unsafe.Sizeof(bufctl{})

func bufctlAt(addr uintptr) *bufctl {
	return (*bufctl)(unsafe.Pointer(addr))
}
