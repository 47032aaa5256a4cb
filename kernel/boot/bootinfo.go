// Package boot models the already-parsed boot-protocol inputs the memory
// manager consumes: the memory map, the higher-half direct map (HHDM)
// offset, and the kernel's physical/virtual load addresses. The handshake
// that produces these values (Limine request/response structures) is an
// external collaborator and out of scope for this repository; this package
// only carries its output, the same boundary the teacher repository draws
// around its multiboot package's SetInfoPtr/VisitMemRegions split.
package boot

// MemoryMapEntryType classifies a region of physical memory as reported by
// the bootloader.
type MemoryMapEntryType uint8

const (
	Usable MemoryMapEntryType = iota
	Reserved
	AcpiReclaimable
	AcpiNvs
	Bad
	BootloaderReclaimable
	KernelAndModules
	Framebuffer
)

// String implements fmt.Stringer-shaped formatting without depending on fmt.
func (t MemoryMapEntryType) String() string {
	switch t {
	case Usable:
		return "usable"
	case Reserved:
		return "reserved"
	case AcpiReclaimable:
		return "acpi-reclaimable"
	case AcpiNvs:
		return "acpi-nvs"
	case Bad:
		return "bad"
	case BootloaderReclaimable:
		return "bootloader-reclaimable"
	case KernelAndModules:
		return "kernel-and-modules"
	case Framebuffer:
		return "framebuffer"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes one contiguous physical memory region.
type MemoryMapEntry struct {
	Base   uint64
	Length uint64
	Type   MemoryMapEntryType
}

// End returns the exclusive end address of the entry.
func (e *MemoryMapEntry) End() uint64 {
	return e.Base + e.Length
}

// MemoryMap is the ordered sequence of regions reported by the bootloader.
type MemoryMap []MemoryMapEntry

// VisitUsable calls fn for every Usable entry in map order, stopping early
// if fn returns false.
func (m MemoryMap) VisitUsable(fn func(*MemoryMapEntry) bool) {
	for i := range m {
		if m[i].Type != Usable {
			continue
		}
		if !fn(&m[i]) {
			return
		}
	}
}

// Visit calls fn for every entry regardless of type, stopping early if fn
// returns false.
func (m MemoryMap) Visit(fn func(*MemoryMapEntry) bool) {
	for i := range m {
		if !fn(&m[i]) {
			return
		}
	}
}

// HighestAddress returns the highest (base+length) reported across every
// Usable entry, or 0 if there are none.
func (m MemoryMap) HighestAddress() uint64 {
	var highest uint64
	m.VisitUsable(func(e *MemoryMapEntry) bool {
		if end := e.End(); end > highest {
			highest = end
		}
		return true
	})
	return highest
}

// KernelAddress carries the kernel's physical load address and the virtual
// address it is mapped to in the higher half; their difference is the
// "kernel slide" the VMM uses when mapping KernelAndModules regions.
type KernelAddress struct {
	PhysicalBase uintptr
	VirtualBase  uintptr
}

// Slide returns VirtualBase - PhysicalBase.
func (k KernelAddress) Slide() uintptr {
	return k.VirtualBase - k.PhysicalBase
}

// Info aggregates every boot-provided input the memory manager needs at
// init time.
type Info struct {
	MemoryMap  MemoryMap
	HHDMOffset uintptr
	Kernel     KernelAddress
}
