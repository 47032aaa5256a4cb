// Package sync provides the synchronization primitive the memory manager
// runs on before any scheduler exists: a test-and-set spinlock. No blocking
// primitive (channel, mutex with parking) is usable this early since there
// is nothing to yield to, so every lock in pmm/vmm/slab/heap is one of
// these.
package sync

import (
	"sync/atomic"

	"memkernel/kernel/cpu"
)

// Spinlock is a busy-wait mutual exclusion lock. Re-acquiring a Spinlock
// already held by the calling hardware thread deadlocks it, same as any
// non-reentrant lock.
type Spinlock struct {
	state uint32
}

// Acquire blocks, spinning with a PAUSE between attempts, until the lock is
// obtained.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		cpu.Pause()
	}
}

// TryToAcquire attempts to take the lock without blocking, returning
// whether it succeeded.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Calling it on an already-free lock is a
// no-op.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
