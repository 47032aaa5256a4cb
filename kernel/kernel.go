// Package kernel provides the types shared across every memory management
// component: the allocation-free error type and the raw memory helpers used
// before any Go-managed heap exists.
package kernel

// Error describes a kernel-level error. All kernel errors are defined as
// package-level variables holding a pointer to this structure. This
// requirement stems from the fact that a Go allocator is not yet available
// when most of these errors can occur, so errors.New (which allocates) is
// not an option.
type Error struct {
	// Module is the subsystem that produced the error (e.g. "pmm", "vmm").
	Module string

	// Message is a short, human readable description of the failure.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "[" + e.Module + "] " + e.Message
}
