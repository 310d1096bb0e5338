// Package trap routes PowerPC 4xx exceptions to the kernel handlers that
// registered for them.
package trap

import (
	"io"
	"ppc4xx/kernel"
	"ppc4xx/kernel/kfmt"
)

// Frame contains a snapshot of the processor state when an exception is
// taken.
type Frame struct {
	// SRR0 holds the address of the instruction that caused the exception.
	SRR0 uint32

	// SRR1 holds the MSR value at the time of the exception.
	SRR1 uint32

	// DEAR holds the effective address of a faulting data access.
	DEAR uint32

	// ESR describes the cause of a storage exception.
	ESR uint32

	// PID is the process ID register at the time of the exception.
	PID uint8
}

// Exception syndrome register bits.
const (
	// ESRDST is set when a data storage exception was caused by a store.
	ESRDST = uint32(1 << 23)

	// ESRDIZ is set when a zone fault caused the exception.
	ESRDIZ = uint32(1 << 22)
)

// DumpTo outputs the frame contents to w.
func (f *Frame) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "SRR0 = %8x SRR1 = %8x\n", f.SRR0, f.SRR1)
	kfmt.Fprintf(w, "DEAR = %8x ESR  = %8x\n", f.DEAR, f.ESR)
	kfmt.Fprintf(w, "PID  = %d\n", f.PID)
}

// Vector identifies an exception by its offset in the 4xx exception vector
// table.
type Vector uint16

const (
	// DataStorage is raised when a data access violates the protection
	// attributes of a valid translation or when the VM layer must resolve
	// an address that has no translation at all.
	DataStorage = Vector(0x0300)

	// InstStorage is the instruction fetch equivalent of DataStorage.
	InstStorage = Vector(0x0400)

	// DataTLBMiss is raised when no TLB entry translates a data access.
	DataTLBMiss = Vector(0x1100)

	// InstTLBMiss is raised when no TLB entry translates an instruction
	// fetch.
	InstTLBMiss = Vector(0x1200)
)

// Handler services an exception. Returning from the handler resumes the
// faulting instruction.
type Handler func(*Frame)

var (
	handlers = map[Vector]Handler{}

	errUnhandledTrap = &kernel.Error{Module: "trap", Message: "unhandled exception"}
)

// HandleTrap installs handler for the given vector replacing any previously
// installed handler. Passing a nil handler uninstalls it.
func HandleTrap(vec Vector, handler Handler) {
	if handler == nil {
		delete(handlers, vec)
		return
	}
	handlers[vec] = handler
}

// Dispatch invokes the handler registered for vec. Exceptions without a
// handler are fatal.
func Dispatch(vec Vector, frame *Frame) {
	if handler, ok := handlers[vec]; ok {
		handler(frame)
		return
	}

	kfmt.Printf("\nUnhandled exception 0x%4x\nRegisters:\n", uint16(vec))
	frame.DumpTo(kfmt.GetOutputSink())
	kfmt.Panic(errUnhandledTrap)
}
