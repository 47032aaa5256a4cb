package slab

import "memkernel/kernel/sync"

// registryLock guards the process-global list of caches (spec.md §4.3:
// "inserted into a process-global list of caches for enumeration").
var (
	registryLock sync.Spinlock
	registryHead *Cache
)

func register(c *Cache) {
	registryLock.Acquire()
	defer registryLock.Release()

	c.registryNext = registryHead
	if registryHead != nil {
		registryHead.registryPrev = c
	}
	registryHead = c
}

func unregister(c *Cache) {
	registryLock.Acquire()
	defer registryLock.Release()

	if c.registryPrev != nil {
		c.registryPrev.registryNext = c.registryNext
	} else {
		registryHead = c.registryNext
	}
	if c.registryNext != nil {
		c.registryNext.registryPrev = c.registryPrev
	}
	c.registryNext, c.registryPrev = nil, nil
}

// VisitCaches calls fn for every registered cache, stopping early if fn
// returns false.
func VisitCaches(fn func(*Cache) bool) {
	registryLock.Acquire()
	defer registryLock.Release()

	for c := registryHead; c != nil; c = c.registryNext {
		if !fn(c) {
			return
		}
	}
}
