package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"memkernel/kernel"
	"memkernel/kernel/boot"
	"memkernel/kernel/mem"
	"memkernel/kernel/mem/pmm"
)

// newTestHeap backs a Heap with a real kernel/mem/pmm.Buddy over a real Go
// byte slice, the same HHDM-over-a-slice technique the pmm and vmm package
// tests use, so Alloc/Free exercise the exact frame-range calls a live
// kernel would make.
func newTestHeap(t *testing.T, physBytes uint64) (*Heap, *pmm.Buddy) {
	t.Helper()

	backing := make([]byte, physBytes)
	hhdmOffset := uintptr(unsafe.Pointer(&backing[0]))

	mm := boot.MemoryMap{{Base: 0, Length: physBytes, Type: boot.Usable}}
	var b pmm.Buddy
	require.Nil(t, b.Init(mm, hhdmOffset))

	allocPages := func(count uint64) (pmm.Frame, *kernel.Error) { return b.AllocPages(count) }
	freePages := func(frame pmm.Frame, count uint64) *kernel.Error { return b.FreePages(frame, count) }

	h := New(hhdmOffset, allocPages, freePages)
	return h, &b
}

func TestAllocSmallIsZeroed(t *testing.T) {
	h, _ := newTestHeap(t, 16*uint64(mem.MB))

	ptr, err := h.Alloc(48)
	require.Nil(t, err)
	require.NotZero(t, ptr)

	for i := uintptr(0); i < 48; i++ {
		require.Zero(t, *(*byte)(unsafe.Pointer(ptr + i)))
	}
}

func TestAllocFreeRoundTripSmall(t *testing.T) {
	h, b := newTestHeap(t, 16*uint64(mem.MB))

	// Each class keeps its head slab once created, so warm the class up
	// before taking the baseline.
	warm, err := h.Alloc(100)
	require.Nil(t, err)
	require.Nil(t, h.Free(warm))

	before := b.Stats()

	ptr, err := h.Alloc(100)
	require.Nil(t, err)
	require.Nil(t, h.Free(ptr))

	after := b.Stats()
	require.Equal(t, before.Used, after.Used)
}

func TestAllocFreeRoundTripLarge(t *testing.T) {
	h, b := newTestHeap(t, 64*uint64(mem.MB))

	before := b.Stats()

	ptr, err := h.Alloc(8192)
	require.Nil(t, err)
	require.Nil(t, h.Free(ptr))

	after := b.Stats()
	require.Equal(t, before.Used, after.Used)
}

// TestHeapAllocFreeScenario is spec scenario 6: a = alloc(16); b =
// alloc(2048); c = alloc(8192); free(a); free(b); free(c); after all
// frees, total used frames in the PMM equal the pre-sequence count and
// every heap class reports zero used objects. The 16 and 2048 classes are
// warmed up first, since each class keeps its head slab once created.
func TestHeapAllocFreeScenario(t *testing.T) {
	h, b := newTestHeap(t, 64*uint64(mem.MB))

	for _, size := range []uintptr{16, 2048} {
		warm, err := h.Alloc(size)
		require.Nil(t, err)
		require.Nil(t, h.Free(warm))
	}

	before := b.Stats()

	a, err := h.Alloc(16)
	require.Nil(t, err)
	bb, err := h.Alloc(2048)
	require.Nil(t, err)
	c, err := h.Alloc(8192)
	require.Nil(t, err)

	require.Nil(t, h.Free(a))
	require.Nil(t, h.Free(bb))
	require.Nil(t, h.Free(c))

	after := b.Stats()
	require.Equal(t, before.Used, after.Used)

	for _, cs := range h.Stats() {
		require.Zero(t, cs.UsedObjects)
	}
}

func TestReallocGrowPreservesContent(t *testing.T) {
	h, _ := newTestHeap(t, 16*uint64(mem.MB))

	ptr, err := h.Alloc(16)
	require.Nil(t, err)
	*(*byte)(unsafe.Pointer(ptr)) = 0xAB

	newPtr, err := h.Realloc(ptr, 256)
	require.Nil(t, err)
	require.Equal(t, byte(0xAB), *(*byte)(unsafe.Pointer(newPtr)))
}

func TestReallocNilActsAsAlloc(t *testing.T) {
	h, _ := newTestHeap(t, 16*uint64(mem.MB))

	ptr, err := h.Realloc(0, 32)
	require.Nil(t, err)
	require.NotZero(t, ptr)
}

func TestReallocZeroActsAsFree(t *testing.T) {
	h, b := newTestHeap(t, 16*uint64(mem.MB))

	// Warm the 64-byte class so its retained head slab is in the baseline.
	warm, err := h.Alloc(64)
	require.Nil(t, err)
	require.Nil(t, h.Free(warm))

	before := b.Stats()
	ptr, err := h.Alloc(64)
	require.Nil(t, err)

	newPtr, err := h.Realloc(ptr, 0)
	require.Nil(t, err)
	require.Zero(t, newPtr)

	after := b.Stats()
	require.Equal(t, before.Used, after.Used)
}

func TestHeapKeepsOneWarmSlabPerClass(t *testing.T) {
	h, _ := newTestHeap(t, 16*uint64(mem.MB))

	stats := h.Stats()
	capacity := stats[0].TotalObjects
	_ = capacity

	idx := classForSize(16)
	require.GreaterOrEqual(t, idx, 0)

	cap32 := objectsPerHeapSlab(classSizes[idx])

	var objs []uintptr
	for i := uint32(0); i < cap32; i++ {
		p, err := h.Alloc(16)
		require.Nil(t, err)
		objs = append(objs, p)
	}
	for _, p := range objs {
		require.Nil(t, h.Free(p))
	}

	final := h.Stats()
	require.Equal(t, 1, final[idx].Slabs)
	require.Zero(t, final[idx].UsedObjects)
}
