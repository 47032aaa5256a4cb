package pmm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"memkernel/kernel/boot"
	"memkernel/kernel/mem"
)

// newTestBuddy backs a Buddy allocator with a real Go byte slice standing in
// for physical memory: phys address P is reachable at hhdmOffset+P, exactly
// as it would be through the bootloader's HHDM, by pointing hhdmOffset at
// the slice's backing array.
func newTestBuddy(t *testing.T, physBytes uint64) (*Buddy, boot.MemoryMap) {
	t.Helper()

	backing := make([]byte, physBytes)
	hhdmOffset := uintptr(unsafe.Pointer(&backing[0]))

	mm := boot.MemoryMap{
		{Base: 0, Length: physBytes, Type: boot.Usable},
	}

	var b Buddy
	if err := b.Init(mm, hhdmOffset); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return &b, mm
}

func TestBuddyInitReservesLowAndBitmapFrames(t *testing.T) {
	b, _ := newTestBuddy(t, 64*uint64(mem.MB))

	for f := Frame(0); f < protectedFrameCount; f++ {
		require.Truef(t, b.bitmap.isUsed(f), "frame %d below 1MiB must be reserved", f)
	}
}

func TestAllocFreeRoundTripOrder(t *testing.T) {
	b, _ := newTestBuddy(t, 64*uint64(mem.MB))

	before := b.Stats()

	for i := 0; i < 1000; i++ {
		frame, err := b.AllocOrder(3)
		require.Nil(t, err)
		require.True(t, frame.Valid())

		err = b.FreeOrder(frame.Address(), 3)
		require.Nil(t, err)
	}

	after := b.Stats()
	require.Equal(t, before.Used, after.Used)
	require.Equal(t, before.FreeBlocksByOrder, after.FreeBlocksByOrder)
}

func TestAllocPagesFreePagesRoundTrip(t *testing.T) {
	b, _ := newTestBuddy(t, 64*uint64(mem.MB))

	before := b.Stats()

	p, err := b.AllocPages(8)
	require.Nil(t, err)
	require.True(t, p.Valid())

	require.Nil(t, b.FreePages(p, 8))

	after := b.Stats()
	require.Equal(t, before, after)
}

func TestNoBuddyPresentInSameList(t *testing.T) {
	b, _ := newTestBuddy(t, 64*uint64(mem.MB))

	for order := 0; order < maxOrder; order++ {
		seen := map[Frame]bool{}
		for cur := b.free[order].head; cur.Valid(); cur = b.nodeAt(cur).next {
			buddy := Frame(uint64(cur) ^ (uint64(1) << uint(order)))
			require.Falsef(t, seen[buddy], "order %d: buddy pair %d/%d both present", order, cur, buddy)
			seen[cur] = true
		}
	}
}

func TestAllocExhaustionReturnsOutOfMemory(t *testing.T) {
	b, _ := newTestBuddy(t, 16*uint64(mem.MB))

	var allocated []Frame
	for {
		f, err := b.AllocOrder(maxOrder)
		if err != nil {
			require.Equal(t, ErrOutOfMemory, err)
			break
		}
		allocated = append(allocated, f)
	}
	require.NotEmpty(t, allocated)

	for _, f := range allocated {
		require.Nil(t, b.FreeOrder(f.Address(), maxOrder))
	}
}

func TestDoubleFreeIsIgnored(t *testing.T) {
	b, _ := newTestBuddy(t, 16*uint64(mem.MB))

	f, err := b.AllocPage()
	require.Nil(t, err)
	require.Nil(t, b.FreePage(f))
	// Freeing again must not panic or corrupt state; it's reported and ignored.
	require.Nil(t, b.FreePage(f))
}

func TestFreeBelowProtectedRegionIsRejected(t *testing.T) {
	b, _ := newTestBuddy(t, 16*uint64(mem.MB))

	err := b.FreeOrder(0, 0)
	require.Equal(t, ErrInvalidAddress, err)
}

func TestRegionFrameBoundsRejectsSubPageRegion(t *testing.T) {
	// A Usable region smaller than one page, starting above frame 0: both
	// endpoints round to the same or an inverted pair of frames, and must
	// be reported as empty rather than producing a start > end pair that a
	// max-value sentinel would hide.
	e := &boot.MemoryMapEntry{Base: 0x500, Length: 0x100, Type: boot.Usable}
	_, _, ok := regionFrameBounds(e)
	require.False(t, ok)
}

func TestRegionFrameBoundsAcceptsWholeFrame(t *testing.T) {
	e := &boot.MemoryMapEntry{Base: uint64(mem.PageSize), Length: uint64(mem.PageSize), Type: boot.Usable}
	start, end, ok := regionFrameBounds(e)
	require.True(t, ok)
	require.Equal(t, Frame(1), start)
	require.Equal(t, Frame(1), end)
}

func TestInitSkipsSubPageUsableRegionWithoutCorruption(t *testing.T) {
	// Regression test: a sub-page Usable region that starts above frame 0
	// used to make regionFrameBounds return (start, InvalidFrame), which
	// the end >= start guard at the call sites let through, driving
	// markRange/enrollRegion with a wrapped, huge frame count.
	const physBytes = 16 * uint64(mem.MB)
	backing := make([]byte, physBytes)
	hhdmOffset := uintptr(unsafe.Pointer(&backing[0]))

	mm := boot.MemoryMap{
		{Base: 0, Length: physBytes, Type: boot.Usable},
		{Base: physBytes + 0x500, Length: 0x100, Type: boot.Usable},
	}

	var b Buddy
	require.Nil(t, b.Init(mm, hhdmOffset))

	f, err := b.AllocPage()
	require.Nil(t, err)
	require.Nil(t, b.FreePage(f))
}

func TestAllocAlignedHonorsAlignment(t *testing.T) {
	b, _ := newTestBuddy(t, 64*uint64(mem.MB))

	f, err := b.AllocAligned(mem.Size(3*uint64(mem.PageSize)), mem.Size(4*uint64(mem.PageSize)))
	require.Nil(t, err)
	require.Zero(t, f.Address()%(4*uint64(mem.PageSize)))
}
