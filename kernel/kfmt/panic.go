package kfmt

import (
	"memkernel/kernel"
	"memkernel/kernel/cpu"
)

var (
	haltFn = cpu.Halt

	errUnknownPanic = &kernel.Error{Module: "kfmt", Message: "unknown cause"}
)

// Panic prints e (if it carries a *kernel.Error) and halts the CPU. Panic
// never returns. It is the terminal path for every Corruption-class error
// in the memory manager (slab header mismatch, large-allocation header out
// of range): those are defined as fatal rather than recoverable.
func Panic(e interface{}) {
	var err *kernel.Error

	switch v := e.(type) {
	case *kernel.Error:
		err = v
	case string:
		errUnknownPanic.Message = v
		err = errUnknownPanic
	case error:
		errUnknownPanic.Message = v.Error()
		err = errUnknownPanic
	default:
		err = errUnknownPanic
	}

	Printf("\n-----------------------------------\n")
	Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	Printf("*** kernel panic: system halted ***\n")
	Printf("-----------------------------------\n")

	haltFn()
}
