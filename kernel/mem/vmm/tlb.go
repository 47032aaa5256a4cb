package vmm

import "memkernel/kernel/cpu"

// invalidatePageFn, readCR3Fn and writeCR3Fn are the CPU primitives the
// helpers below go through. They are variables so that tests running in a
// hosted process can replace them: the real instructions are privileged.
var (
	invalidatePageFn = cpu.InvalidatePage
	readCR3Fn        = cpu.ReadCR3
	writeCR3Fn       = cpu.WriteCR3
)

// invalidate flushes the TLB entry for a single virtual address.
func invalidate(virt uintptr) {
	invalidatePageFn(virt)
}

// flushAll reloads CR3, flushing every non-global TLB entry. Used instead
// of per-page invalidation once a mutation touches more than
// fullFlushThreshold pages (spec.md §4.2).
func flushAll() {
	writeCR3Fn(readCR3Fn())
}

// loadCR3 activates root as the current address space.
func loadCR3(physAddr uintptr) {
	writeCR3Fn(physAddr)
}
