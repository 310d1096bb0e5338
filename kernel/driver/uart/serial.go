// Package uart provides a polled driver for the NS16550 compatible serial
// ports of the 4xx on-chip peripheral bus. The kernel uses it as its console.
package uart

import (
	"ppc4xx/kernel/machine"
	"ppc4xx/kernel/sync"
)

// Register offsets from the port base. DLL and DLM overlay RBR/THR and IER
// while LCR.DLAB is set.
const (
	regTHR = 0
	regDLL = 0
	regIER = 1
	regDLM = 1
	regFCR = 2
	regLCR = 3
	regMCR = 4
	regLSR = 5

	// RegisterSpan is the number of bytes decoded by a port.
	RegisterSpan = 8
)

const (
	lcrDLAB = 0x80
	lcr8N1  = 0x03
	fcrInit = 0x07 // enable and reset both FIFOs
	mcrInit = 0x03 // DTR | RTS
	lsrTHRE = 0x20

	// txSpin bounds the number of LSR polls before a byte is written
	// regardless of the transmitter state.
	txSpin = 1 << 10
)

var (
	// regReadFn and regWriteFn are mocked by tests.
	regReadFn  = readReg
	regWriteFn = writeReg
)

// readReg loads a register through the MMU. The port sits behind a cache
// inhibited, guarded mapping.
func readReg(addr uintptr) (uint8, error) {
	var b [1]byte
	if err := machine.Load(addr, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeReg(addr uintptr, v uint8) error {
	if err := machine.Store(addr, []byte{v}); err != nil {
		return err
	}
	return nil
}

// Serial is a write-only console attached to a single port.
type Serial struct {
	mutex sync.Spinlock
	base  uintptr
}

// Init programs the port at base for 8N1 operation at baud with interrupts
// disabled. clock is the UART input clock in Hz.
func (s *Serial) Init(base uintptr, clock, baud uint32) error {
	s.mutex.Acquire()
	defer s.mutex.Release()

	s.base = base

	divisor := clock / (16 * baud)
	for _, reg := range []struct {
		off uintptr
		val uint8
	}{
		{regLCR, lcrDLAB},
		{regDLL, uint8(divisor)},
		{regDLM, uint8(divisor >> 8)},
		{regLCR, lcr8N1},
		{regIER, 0},
		{regFCR, fcrInit},
		{regMCR, mcrInit},
	} {
		if err := regWriteFn(base+reg.off, reg.val); err != nil {
			return err
		}
	}

	return nil
}

// Write implements io.Writer. Line feeds are sent as CR LF.
func (s *Serial) Write(data []byte) (int, error) {
	s.mutex.Acquire()
	defer s.mutex.Release()

	for i, b := range data {
		if b == '\n' {
			if err := s.putc('\r'); err != nil {
				return i, err
			}
		}
		if err := s.putc(b); err != nil {
			return i, err
		}
	}

	return len(data), nil
}

// putc waits for the transmit holding register to drain and sends b.
func (s *Serial) putc(b byte) error {
	for spin := 0; spin < txSpin; spin++ {
		lsr, err := regReadFn(s.base + regLSR)
		if err != nil {
			return err
		}
		if lsr&lsrTHRE != 0 {
			break
		}
	}

	return regWriteFn(s.base+regTHR, b)
}
