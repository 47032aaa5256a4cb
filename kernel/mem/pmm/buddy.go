package pmm

import (
	"unsafe"

	"memkernel/kernel"
	"memkernel/kernel/boot"
	"memkernel/kernel/kfmt"
	"memkernel/kernel/mem"
	"memkernel/kernel/sync"
)

// protectedFrameCount is the number of frames below 1 MiB that are always
// reserved, regardless of what the memory map reports for that range.
const protectedFrameCount = Frame((1 << 20) / uint64(mem.PageSize))

// Buddy is a physical frame allocator built from a liveness bitmap and one
// doubly-linked free list per power-of-two order. All operations are
// serialized behind a single spinlock (spec.md §5: "allocation and free are
// fully serialized").
type Buddy struct {
	lock sync.Spinlock

	hhdmOffset uintptr

	bitmap bitmap

	free       [maxOrder + 1]freeList
	freeBlocks [maxOrder + 1]uint32

	highestAddr uint64
	frameCount  uint64
	usedFrames  uint64
}

// Init builds the bitmap and free lists from the bootloader-reported memory
// map. It is one-shot: calling it twice on the same Buddy re-derives state
// from scratch and will generally corrupt an already-running allocator.
func (b *Buddy) Init(mm boot.MemoryMap, hhdmOffset uintptr) *kernel.Error {
	b.hhdmOffset = hhdmOffset
	b.highestAddr = mm.HighestAddress()
	b.frameCount = b.highestAddr / uint64(mem.PageSize)
	for i := range b.free {
		b.free[i].head = InvalidFrame
	}

	wordsNeeded := b.bitmap.wordsNeeded(b.frameCount)
	bitmapBytes := wordsNeeded * 8

	bitmapPhysAddr, err := findRoomForBitmap(mm, bitmapBytes)
	if err != nil {
		return err
	}

	b.bitmap.frameCount = b.frameCount
	b.bitmap.words = unsafe.Slice((*uint64)(unsafe.Pointer(hhdmOffset+uintptr(bitmapPhysAddr))), wordsNeeded)
	b.bitmap.fillUsed()

	mm.VisitUsable(func(e *boot.MemoryMapEntry) bool {
		start, end, ok := regionFrameBounds(e)
		if ok {
			b.bitmap.markRange(start, uint64(end-start+1), false)
		}
		return true
	})

	// Frames below 1 MiB are always reserved.
	if protectedFrameCount > 0 {
		b.bitmap.markRange(0, uint64(protectedFrameCount), true)
	}

	// Frames backing the bitmap itself are reserved.
	bitmapStartFrame := FrameFromAddress(bitmapPhysAddr)
	bitmapPages := (bitmapBytes + uint64(mem.PageSize) - 1) / uint64(mem.PageSize)
	b.bitmap.markRange(bitmapStartFrame, bitmapPages, true)

	b.usedFrames = b.bitmap.usedCount()

	mm.VisitUsable(func(e *boot.MemoryMapEntry) bool {
		start, end, ok := regionFrameBounds(e)
		if ok {
			b.enrollRegion(start, end)
		}
		return true
	})

	kfmt.Printf("[pmm] total: %d frames, free: %d frames\n", b.frameCount, b.frameCount-b.usedFrames)
	return nil
}

// regionFrameBounds rounds a memory-map entry's [base, base+length) range
// inward to whole frames: up for the start, down for the (inclusive) end.
// ok is false when the rounding leaves no whole frame inside the region
// (e.g. a sub-page region, or one that starts above frame 0 and rounds
// past its own end); callers must skip the region in that case rather
// than trust start/end, which are otherwise meaningless.
func regionFrameBounds(e *boot.MemoryMapEntry) (start, end Frame, ok bool) {
	pageMask := uint64(mem.PageSize) - 1
	startFrame := (e.Base + pageMask) &^ pageMask >> mem.PageShift
	endFrame := (e.End() &^ pageMask) >> mem.PageShift
	if endFrame <= startFrame {
		return 0, 0, false
	}
	return Frame(startFrame), Frame(endFrame - 1), true
}

// findRoomForBitmap returns the physical address of the first Usable region
// large enough to hold byteLen bytes of bitmap storage.
func findRoomForBitmap(mm boot.MemoryMap, byteLen uint64) (uintptr, *kernel.Error) {
	var addr uintptr
	found := false
	mm.VisitUsable(func(e *boot.MemoryMapEntry) bool {
		if e.Length >= byteLen {
			addr = uintptr(e.Base)
			found = true
			return false
		}
		return true
	})
	if !found {
		return 0, ErrOutOfMemory
	}
	return addr, nil
}

// enrollRegion walks [start, end] (inclusive) and pushes the largest legal
// aligned, fully-free block onto the appropriate free list at each step,
// advancing past already-reserved frames one at a time.
func (b *Buddy) enrollRegion(start, end Frame) {
	frame := start
	for frame <= end {
		if b.bitmap.isUsed(frame) {
			frame++
			continue
		}

		placed := false
		for order := maxOrder; order >= 0; order-- {
			blockCount := uint64(1) << uint(order)
			if uint64(frame)%blockCount != 0 {
				continue
			}
			blockEnd := frame + Frame(blockCount) - 1
			if blockEnd > end {
				continue
			}
			if !b.bitmap.rangeFree(frame, blockCount) {
				continue
			}

			b.push(uint8(order), frame)
			frame += Frame(blockCount)
			placed = true
			break
		}
		if !placed {
			frame++
		}
	}
}

// AllocOrder reserves a contiguous block of 2^order frames, splitting a
// larger block if no exact match is free.
func (b *Buddy) AllocOrder(order uint8) (Frame, *kernel.Error) {
	if order > maxOrder {
		return InvalidFrame, ErrInvalidCount
	}

	b.lock.Acquire()
	defer b.lock.Release()

	return b.allocOrderLocked(order)
}

func (b *Buddy) allocOrderLocked(order uint8) (Frame, *kernel.Error) {
	if head := b.popHead(order); head.Valid() {
		count := uint64(1) << order
		b.bitmap.markRange(head, count, true)
		b.usedFrames += count
		return head, nil
	}

	if order == maxOrder {
		return InvalidFrame, ErrOutOfMemory
	}

	block, err := b.allocOrderLocked(order + 1)
	if err != nil {
		return InvalidFrame, err
	}

	half := uint64(1) << order
	upperHalf := block + Frame(half)

	b.bitmap.markRange(upperHalf, half, false)
	b.usedFrames -= half
	b.push(order, upperHalf)

	return block, nil
}

// FreeOrder releases a block of 2^order frames previously returned by
// AllocOrder, coalescing with its buddy whenever possible.
func (b *Buddy) FreeOrder(addr uintptr, order uint8) *kernel.Error {
	if order > maxOrder {
		return ErrInvalidCount
	}

	frame := FrameFromAddress(addr)
	count := uint64(1) << order
	if uint64(frame)%count != 0 {
		return ErrInvalidAddress
	}
	if frame < protectedFrameCount || uint64(frame)+count > b.frameCount {
		return ErrInvalidAddress
	}

	b.lock.Acquire()
	defer b.lock.Release()

	if b.bitmap.rangeFree(frame, count) {
		kfmt.Printf("[pmm] double free of frame %d (order %d)\n", uint64(frame), order)
		return nil
	}

	b.bitmap.markRange(frame, count, false)
	b.usedFrames -= count

	curFrame, curOrder := frame, order
	for curOrder < maxOrder {
		buddyFrame := Frame(uint64(curFrame) ^ (uint64(1) << curOrder))
		buddyCount := uint64(1) << curOrder
		if uint64(buddyFrame)+buddyCount > b.frameCount || !b.bitmap.rangeFree(buddyFrame, buddyCount) || !b.contains(curOrder, buddyFrame) {
			break
		}

		b.detach(curOrder, buddyFrame)
		if buddyFrame < curFrame {
			curFrame = buddyFrame
		}
		curOrder++
	}

	b.push(curOrder, curFrame)
	return nil
}

// orderForCount returns the smallest order whose block size (in frames) is
// >= count.
func orderForCount(count uint64) (uint8, *kernel.Error) {
	if count == 0 || count > uint64(1)<<maxOrder {
		return 0, ErrInvalidCount
	}
	var order uint8
	blockCount := uint64(1)
	for blockCount < count {
		blockCount <<= 1
		order++
	}
	return order, nil
}

// AllocPages reserves the smallest power-of-two block covering count
// contiguous frames.
func (b *Buddy) AllocPages(count uint64) (Frame, *kernel.Error) {
	order, err := orderForCount(count)
	if err != nil {
		return InvalidFrame, err
	}
	return b.AllocOrder(order)
}

// FreePages releases a block previously returned by AllocPages for the same
// count.
func (b *Buddy) FreePages(frame Frame, count uint64) *kernel.Error {
	order, err := orderForCount(count)
	if err != nil {
		return err
	}
	return b.FreeOrder(frame.Address(), order)
}

// AllocPage reserves a single frame.
func (b *Buddy) AllocPage() (Frame, *kernel.Error) {
	return b.AllocOrder(0)
}

// FreePage releases a single frame previously returned by AllocPage.
func (b *Buddy) FreePage(frame Frame) *kernel.Error {
	return b.FreeOrder(frame.Address(), 0)
}

// AllocAligned reserves a contiguous block covering at least size bytes
// whose start address is aligned to alignment bytes (alignment must be a
// power of two multiple of the page size).
func (b *Buddy) AllocAligned(size, alignment mem.Size) (Frame, *kernel.Error) {
	sizeOrder, err := orderForCount((uint64(size) + uint64(mem.PageSize) - 1) / uint64(mem.PageSize))
	if err != nil {
		return InvalidFrame, err
	}

	alignPages := uint64(alignment) / uint64(mem.PageSize)
	if alignPages == 0 {
		alignPages = 1
	}
	alignOrder, err := orderForCount(alignPages)
	if err != nil {
		return InvalidFrame, err
	}

	order := sizeOrder
	if alignOrder > order {
		order = alignOrder
	}
	return b.AllocOrder(order)
}
