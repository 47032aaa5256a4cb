package pmm

import "memkernel/kernel/mem"

// Stats summarizes the current state of the allocator.
type Stats struct {
	Total mem.Size
	Used  mem.Size
	Free  mem.Size

	// FreeBlocksByOrder[k] is the number of free blocks currently on the
	// order-k free list.
	FreeBlocksByOrder [maxOrder + 1]uint32
}

// Stats returns a point-in-time snapshot of allocator usage.
func (b *Buddy) Stats() Stats {
	b.lock.Acquire()
	defer b.lock.Release()

	total := mem.Size(b.highestAddr)
	used := mem.Size(b.usedFrames) * mem.PageSize

	return Stats{
		Total:             total,
		Used:              used,
		Free:              total - used,
		FreeBlocksByOrder: b.freeBlocks,
	}
}
