package slab

// Stats summarizes the slab conservation invariant for one cache: at any
// quiescent point the free objects number TotalObjects-UsedObjects, both
// summed over every slab in all three lists (spec.md §7).
type Stats struct {
	Name           string
	ObjectSize     uintptr
	ObjectsPerSlab uint32
	FullSlabs      int
	PartialSlabs   int
	EmptySlabs     int
	UsedObjects    uint32
	TotalObjects   uint32
}

// Stats walks every slab list and reports current utilization. It locks
// the cache for the duration of the walk.
func (c *Cache) Stats() Stats {
	c.lock.Acquire()
	defer c.lock.Release()

	s := Stats{
		Name:           c.name,
		ObjectSize:     c.objectSize,
		ObjectsPerSlab: c.objectsPerSlab,
		FullSlabs:      c.full.count(),
		PartialSlabs:   c.partial.count(),
		EmptySlabs:     c.empty.count(),
	}

	for _, list := range []*slabList{&c.full, &c.partial, &c.empty} {
		for cur := list.head; cur != 0; cur = headerAt(cur).next {
			sh := headerAt(cur)
			s.UsedObjects += sh.usedObjects
			s.TotalObjects += sh.objectCount
		}
	}

	return s
}
