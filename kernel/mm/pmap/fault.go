package pmap

import (
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/trap"
)

// Outcome is the result of handling a TLB miss.
type Outcome uint8

const (
	// Resolved means a translation was loaded into the TLB and the access
	// can be retried.
	Resolved Outcome = iota

	// Unmapped means the address has no translation; the miss must be
	// handled as a page fault.
	Unmapped
)

// handleTrapFn is mocked by tests.
var handleTrapFn = trap.HandleTrap

// TLBMiss loads a translation for va in context ctx. Kernel context
// accesses outside the kernel page table range are served by a 16M direct
// mapped entry; everything else is looked up in the page table of the
// address space that owns ctx.
func (m *TLBManager) TLBMiss(va uintptr, ctx uint8) Outcome {
	m.stats.Misses++
	if !vaValid(va) {
		return Unmapped
	}

	var tte TTE
	if ctx == KernelPID && (va < VMMinKernelAddress || va >= VMMaxKernelAddress) {
		tte = makeTTE(va&^(directMapSize-1), TTESize16M, zonePriv, TTEEX|TTEWR)
	} else {
		pm := m.ctxBusy[ctx]
		if pm == nil {
			return Unmapped
		}

		pte := pteFind(pm, va)
		if pte == nil || *pte == 0 {
			return Unmapped
		}
		tte = *pte
	}

	m.stats.Hits++
	m.Enter(ctx, va, tte)
	return Resolved
}

// TLBMiss handles a TLB miss for va in context ctx on the processor's TLB.
func TLBMiss(va uintptr, ctx uint8) Outcome {
	return tlbMgr.TLBMiss(va, ctx)
}

// ReadStats returns the TLB event counters.
func ReadStats() Stats {
	return tlbMgr.Stats()
}

func dataTLBMissHandler(frame *trap.Frame) {
	if tlbMgr.TLBMiss(uintptr(frame.DEAR), frame.PID) == Unmapped {
		trap.Dispatch(trap.DataStorage, frame)
	}
}

func instTLBMissHandler(frame *trap.Frame) {
	if tlbMgr.TLBMiss(uintptr(frame.SRR0), frame.PID) == Unmapped {
		trap.Dispatch(trap.InstStorage, frame)
	}
}

// installTrapHandlers registers the TLB miss handlers. Storage exceptions
// are left to the VM layer.
func installTrapHandlers() {
	handleTrapFn(trap.DataTLBMiss, dataTLBMissHandler)
	handleTrapFn(trap.InstTLBMiss, instTLBMissHandler)
}

// zpr is the zone protection register value: the privileged zone denies
// user access and the user zone follows the TTE bits.
const zpr = cpu.ZoneUserNone<<(30-2*zonePriv) | cpu.ZonePage<<(30-2*zoneUser)
