// Package cpu models the PowerPC 4xx processor state that the kernel's
// memory management code drives: the software-loaded TLB, the PID, ZPR and
// MSR registers, the caches, physical RAM and the interrupt priority level.
//
// The kernel is hosted, so every privileged instruction is emulated by the
// functions in this package instead of being issued to real hardware.
package cpu

import "ppc4xx/kernel"

// Machine state register bits understood by the model.
const (
	// MSRPR is set while the processor executes in problem (user) state.
	MSRPR = uint32(1 << 14)

	// MSRIR enables instruction address translation.
	MSRIR = uint32(1 << 5)

	// MSRDR enables data address translation.
	MSRDR = uint32(1 << 4)
)

// Zone protection register field values. Each of the 16 zones owns two bits
// of ZPR, zone 0 occupying the most significant pair.
const (
	// ZoneUserNone denies user access; supervisor access follows the TLB
	// WR/EX bits.
	ZoneUserNone = uint32(0)

	// ZonePage makes both user and supervisor access follow the TLB bits.
	ZonePage = uint32(1)

	// ZoneSuperFull grants the supervisor full access; user access follows
	// the TLB bits.
	ZoneSuperFull = uint32(2)

	// ZoneFull grants full access regardless of the TLB bits.
	ZoneFull = uint32(3)
)

var (
	msr          uint32
	pid          uint8
	zpr          uint32
	stackPointer uintptr
	halted       bool

	errHalted = &kernel.Error{Module: "cpu", Message: "processor halted"}
)

// ReadMSR returns the machine state register.
func ReadMSR() uint32 { return msr }

// WriteMSR updates the machine state register.
func WriteMSR(v uint32) { msr = v }

// ReadPID returns the process ID register that tags TLB lookups.
func ReadPID() uint8 { return pid }

// WritePID loads the process ID register.
func WritePID(v uint8) { pid = v }

// ReadZPR returns the zone protection register.
func ReadZPR() uint32 { return zpr }

// WriteZPR loads the zone protection register.
func WriteZPR(v uint32) { zpr = v }

// ZoneAccess extracts the ZPR field for the given zone.
func ZoneAccess(zone uint32) uint32 {
	return (zpr >> (30 - 2*(zone&0xf))) & 0x3
}

// StackPointer returns the value of r1 for the executing context.
func StackPointer() uintptr { return stackPointer }

// SetStackPointer loads r1. The trap and context switch paths use it to
// describe the stack the processor is currently running on.
func SetStackPointer(sp uintptr) { stackPointer = sp }

// Halt stops instruction execution. The hosted processor cannot actually stop
// so Halt records the fact and unwinds the calling goroutine.
func Halt() {
	halted = true
	panic(errHalted)
}

// Halted returns true if Halt has been invoked since the last Reset.
func Halted() bool { return halted }

// Reset returns the processor to its power-on state: translation disabled,
// PID and ZPR cleared, TLB invalidated, RAM and the cache log emptied.
func Reset() {
	msr, pid, zpr, stackPointer, halted = 0, 0, 0, 0, false
	curIPL = IPLNone
	defaultTLB.Reset()
	ram.Reset()
	ResetCacheLog()
}
