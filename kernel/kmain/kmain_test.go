package kmain

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"memkernel/kernel/boot"
	"memkernel/kernel/mem"
)

// Kmain itself is not exercised here: by design (mirroring the teacher's
// own entry point) it never returns on success, ending in kfmt.Panic,
// which halts the CPU via a real HLT instruction. That is fatal to a
// hosted test process, so these tests instead drive the same init
// sequence Kmain chains through, stage by stage.
func newTestBootInfo(t *testing.T, physBytes uint64) boot.Info {
	t.Helper()

	backing := make([]byte, physBytes)
	hhdmOffset := uintptr(unsafe.Pointer(&backing[0]))

	const kernelRegionPages = 16
	kernelBase := uint64(mem.PageSize)
	kernelLength := kernelRegionPages * uint64(mem.PageSize)

	mm := boot.MemoryMap{
		{Base: 0, Length: physBytes, Type: boot.Usable},
		{Base: kernelBase, Length: kernelLength, Type: boot.KernelAndModules},
	}

	return boot.Info{
		MemoryMap:  mm,
		HHDMOffset: hhdmOffset,
		Kernel: boot.KernelAddress{
			PhysicalBase: uintptr(kernelBase),
			VirtualBase:  uintptr(kernelBase) + 0xFFFF_8000_0000_0000,
		},
	}
}

func TestBootSequenceWiresMemoryManager(t *testing.T) {
	info := newTestBootInfo(t, 32*uint64(mem.MB))

	require.Nil(t, PMM.Init(info.MemoryMap, info.HHDMOffset))

	m, err := bootVMM(info)
	require.Nil(t, err)
	require.NotNil(t, m)

	h, err := bootHeap(info)
	require.Nil(t, err)
	require.NotNil(t, h)

	require.Nil(t, bootGenericCaches(info))
	require.NotNil(t, genericCache64)

	ptr, allocErr := h.Alloc(128)
	require.Nil(t, allocErr)
	require.NotZero(t, ptr)
	require.Nil(t, h.Free(ptr))

	obj, cacheErr := genericCache64.Alloc()
	require.Nil(t, cacheErr)
	require.Nil(t, genericCache64.Free(obj))
}
