// Package pmm implements the physical frame allocator: a buddy system over
// a bitmap of frame liveness, handing out and reclaiming 4 KiB-aligned
// physical memory.
package pmm

import (
	"math"

	"memkernel/kernel/mem"
)

// Frame identifies a physical page by its index (physical address >> 12).
type Frame uintptr

// InvalidFrame is returned by allocation routines that fail to reserve a
// frame, and used as the free-list "nil" sentinel.
const InvalidFrame = Frame(math.MaxUint64)

// Valid reports whether f is not the InvalidFrame sentinel.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the start of this frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the frame containing the given physical address.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
