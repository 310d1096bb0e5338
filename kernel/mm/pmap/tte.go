package pmap

import (
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/mm"
)

// TTE is a software page table entry. Its layout mirrors the low word of a
// hardware TLB entry with the two bits below the 4K page number holding a
// page size class instead of address bits:
//
//	RPN[31:12] SZ[11:10] EX[9] WR[8] ZSEL[7:4] W[3] I[2] M[1] G[0]
//
// Every valid entry selects a non-zero zone so the zero word is reserved for
// empty entries.
type TTE uint32

// TTE bits.
const (
	TTERPNMask   = TTE(0xfffff000)
	TTESizeMask  = TTE(0x00000c00)
	TTESizeShift = 10
	TTEEX        = TTE(cpu.TLBEX)
	TTEWR        = TTE(cpu.TLBWR)
	TTEZSELMask  = TTE(cpu.TLBZSELMask)
	TTEWriteThru = TTE(cpu.TLBWriteThru)
	TTEInhibit   = TTE(cpu.TLBInhibit)
	TTEMemCoher  = TTE(cpu.TLBMemCoher)
	TTEGuarded   = TTE(cpu.TLBGuarded)

	// tteLoMask selects the bits that are copied verbatim into the low
	// word of a hardware entry.
	tteLoMask = TTEEX | TTEWR | TTEZSELMask | TTEWriteThru | TTEInhibit | TTEMemCoher | TTEGuarded
)

// Page size classes that can be stored in a TTE.
const (
	TTESize4K TTE = iota << TTESizeShift
	TTESize64K
	TTESize1M
	TTESize16M
)

// makeTTE builds an entry for pa in the given zone.
func makeTTE(pa uintptr, size TTE, zone uint32, flags TTE) TTE {
	return TTE(pa)&TTERPNMask | size&TTESizeMask | TTE(zone<<cpu.TLBZSELShift)&TTEZSELMask | flags&^(TTERPNMask|TTESizeMask|TTEZSELMask)
}

// HasFlags returns true if all supplied flags are set.
func (t TTE) HasFlags(flags TTE) bool {
	return t&flags == flags
}

// sizeCode returns the hardware SIZE field value for the entry's size class.
func (t TTE) sizeCode() uint32 {
	return 1 + 2*uint32((t&TTESizeMask)>>TTESizeShift)
}

// Size returns the number of bytes mapped by the entry.
func (t TTE) Size() uintptr {
	return cpu.TLBSizeBytes(t.sizeCode())
}

// PhysAddress returns the physical address of the start of the mapped page.
func (t TTE) PhysAddress() uintptr {
	return uintptr(t&TTERPNMask) &^ (t.Size() - 1)
}

// Frame returns the physical frame of the mapped page.
func (t TTE) Frame() mm.Frame {
	return mm.FrameFromAddress(t.PhysAddress())
}

// Zone returns the zone selected by the entry.
func (t TTE) Zone() uint32 {
	return uint32(t&TTEZSELMask) >> cpu.TLBZSELShift
}

// tlbEntry converts the entry into a hardware TLB entry translating va for
// the given context.
func (t TTE) tlbEntry(ctx uint8, va uintptr) cpu.TLBEntry {
	pageMask := uint32(t.Size() - 1)
	pa := uint32(t.PhysAddress())

	lo := pa&cpu.TLBRPNMask | uint32(t&tteLoMask)
	if uintptr(pa) >= IOBase {
		lo |= cpu.TLBInhibit | cpu.TLBGuarded
	}

	return cpu.TLBEntry{
		Hi:  uint32(va)&cpu.TLBEPNMask&^pageMask | t.sizeCode()<<cpu.TLBSizeShift | cpu.TLBValid,
		Lo:  lo,
		TID: ctx,
	}
}
