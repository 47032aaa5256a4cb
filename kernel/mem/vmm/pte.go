package vmm

import "memkernel/kernel/mem/pmm"

// EntryFlag is a bit that can be set on a page table entry. The numeric
// values match the x86-64 page table entry encoding exactly (spec.md §6):
// this layout MUST NOT deviate from the hardware specification.
type EntryFlag uintptr

const (
	FlagPresent EntryFlag = 1 << iota
	FlagWritable
	FlagUser
	FlagWriteThrough
	FlagCacheDisable
	FlagAccessed
	FlagDirty
	FlagHuge
	FlagGlobal
)

// FlagNoExecute is bit 63 (the NX bit).
const FlagNoExecute EntryFlag = 1 << 63

// physAddrMask extracts bits 12-51, the physical address encoded in an
// entry.
const physAddrMask = uintptr(0x000F_FFFF_FFFF_F000)

// entry is one 8-byte page table entry: a physical address plus flag bits.
type entry uintptr

func (e entry) hasFlags(flags EntryFlag) bool {
	return uintptr(e)&uintptr(flags) == uintptr(flags)
}

func (e *entry) setFlags(flags EntryFlag) {
	*e = entry(uintptr(*e) | uintptr(flags))
}

func (e *entry) clearFlags(flags EntryFlag) {
	*e = entry(uintptr(*e) &^ uintptr(flags))
}

func (e entry) frame() pmm.Frame {
	return pmm.FrameFromAddress(uintptr(e) & physAddrMask)
}

func (e *entry) setFrame(f pmm.Frame) {
	*e = entry((uintptr(*e) &^ physAddrMask) | f.Address())
}

func (e entry) physAddr() uintptr {
	return uintptr(e) & physAddrMask
}
