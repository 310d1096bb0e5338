// Package machine executes memory accesses the way the 4xx core does: every
// load, store and instruction fetch is translated through the TLB, missing
// translations raise TLB miss exceptions and protection violations raise
// storage exceptions. Once the handler returns the access is retried.
package machine

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/trap"
)

// maxAttempts bounds the number of times a single access is retried after
// an exception. A miss followed by a protection fault followed by a second
// miss is the longest legitimate sequence.
const maxAttempts = 4

// minPageSize is the smallest page a TLB entry can map. Accesses are split
// so that no chunk crosses a translation boundary.
const minPageSize = uintptr(1024)

type accessKind uint8

const (
	accessLoad accessKind = iota
	accessStore
	accessFetch
)

var (
	// dispatchFn is mocked by tests.
	dispatchFn = trap.Dispatch

	errAccessFault = &kernel.Error{Module: "machine", Message: "access fault not resolved by exception handler"}
)

// checkAccess applies the zone protection register and the access bits of e
// to an access. It returns the ESR bits to report and false if the access
// is not permitted.
func checkAccess(e cpu.TLBEntry, kind accessKind, user bool) (uint32, bool) {
	zone := cpu.ZoneAccess(e.Zone())
	switch {
	case zone == cpu.ZoneFull:
		return 0, true
	case zone == cpu.ZoneSuperFull && !user:
		return 0, true
	case zone == cpu.ZoneUserNone && user:
		return trap.ESRDIZ, false
	}

	switch kind {
	case accessStore:
		return 0, e.Lo&cpu.TLBWR != 0
	case accessFetch:
		return 0, e.Lo&cpu.TLBEX != 0
	default:
		return 0, true
	}
}

// translate returns the physical address for an access to va, raising
// exceptions until the access can complete.
func translate(va uintptr, kind accessKind) (uintptr, *kernel.Error) {
	msr := cpu.ReadMSR()
	relocate := msr&cpu.MSRDR != 0
	if kind == accessFetch {
		relocate = msr&cpu.MSRIR != 0
	}
	if !relocate {
		return va, nil
	}

	missVector, storageVector := trap.DataTLBMiss, trap.DataStorage
	if kind == accessFetch {
		missVector, storageVector = trap.InstTLBMiss, trap.InstStorage
	}

	tlb := cpu.DefaultTLB()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		pid := cpu.ReadPID()
		frame := trap.Frame{SRR1: msr, PID: pid}
		switch kind {
		case accessFetch:
			frame.SRR0 = uint32(va)
		case accessStore:
			frame.DEAR, frame.ESR = uint32(va), trap.ESRDST
		default:
			frame.DEAR = uint32(va)
		}

		idx, found := tlb.Search(va, pid)
		if !found {
			dispatchFn(missVector, &frame)
			continue
		}

		entry := tlb.Read(idx)
		esr, ok := checkAccess(entry, kind, msr&cpu.MSRPR != 0)
		if !ok {
			frame.ESR |= esr
			dispatchFn(storageVector, &frame)
			continue
		}

		return entry.Translate(va), nil
	}

	return 0, errAccessFault
}

// access performs a load or store of len(p) bytes at va one translation
// chunk at a time.
func access(va uintptr, p []byte, kind accessKind) *kernel.Error {
	for len(p) > 0 {
		n := int(minPageSize - va&(minPageSize-1))
		if n > len(p) {
			n = len(p)
		}

		pa, err := translate(va, kind)
		if err != nil {
			return err
		}

		if kind == accessStore {
			cpu.RAM().Write(pa, p[:n])
		} else {
			cpu.RAM().Read(pa, p[:n])
		}

		p = p[n:]
		va += uintptr(n)
	}

	return nil
}

// Load reads len(p) bytes starting at the virtual address va.
func Load(va uintptr, p []byte) *kernel.Error {
	return access(va, p, accessLoad)
}

// Store writes p starting at the virtual address va.
func Store(va uintptr, p []byte) *kernel.Error {
	return access(va, p, accessStore)
}

// Fetch reads the big-endian instruction word at va.
func Fetch(va uintptr) (uint32, *kernel.Error) {
	pa, err := translate(va&^3, accessFetch)
	if err != nil {
		return 0, err
	}

	var word [4]byte
	cpu.RAM().Read(pa, word[:])
	return uint32(word[0])<<24 | uint32(word[1])<<16 | uint32(word[2])<<8 | uint32(word[3]), nil
}
