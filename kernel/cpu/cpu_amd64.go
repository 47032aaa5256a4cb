// Package cpu exposes the handful of x86-64 instructions the memory
// manager needs direct access to: pausing inside a spin-wait, invalidating
// a single TLB entry, and reading/writing CR3 (the page-table base
// register). Each is a thin Go declaration backed by hand-written Plan 9
// assembly in cpu_amd64.s, the same split the teacher repository uses for
// every privileged instruction it needs (EnableInterrupts, FlushTLBEntry,
// SwitchPDT, ...).
package cpu

// Pause executes the PAUSE instruction, hinting to the CPU that this is a
// spin-wait loop. Used by sync.Spinlock between lock-acquire attempts.
func Pause()

// InvalidatePage flushes the single TLB entry caching the translation for
// virtAddr (the INVLPG instruction).
func InvalidatePage(virtAddr uintptr)

// ReadCR3 returns the physical address of the currently active top-level
// page table (PML4).
func ReadCR3() uintptr

// WriteCR3 loads physAddr into CR3, switching the active address space and
// implicitly flushing all non-global TLB entries.
func WriteCR3(physAddr uintptr)

// Halt stops instruction execution. It re-executes HLT after every
// interrupt and never returns.
func Halt()
