package cpu

// NTLB is the number of entries in the unified 4xx TLB.
const NTLB = 64

// TLB entry word layout. The high word carries the tag, the low word the
// translation and access control bits.
const (
	TLBEPNMask   = uint32(0xfffffc00)
	TLBSizeMask  = uint32(0x00000380)
	TLBSizeShift = 7
	TLBValid     = uint32(0x00000040)
	TLBEndian    = uint32(0x00000020)
	TLBU0        = uint32(0x00000010)

	TLBRPNMask    = uint32(0xfffffc00)
	TLBEX         = uint32(0x00000200)
	TLBWR         = uint32(0x00000100)
	TLBZSELMask   = uint32(0x000000f0)
	TLBZSELShift  = 4
	TLBWriteThru  = uint32(0x00000008)
	TLBInhibit    = uint32(0x00000004)
	TLBMemCoher   = uint32(0x00000002)
	TLBGuarded    = uint32(0x00000001)
	TLBAttrMask   = TLBWriteThru | TLBInhibit | TLBMemCoher | TLBGuarded
	TLBAccessMask = TLBEX | TLBWR
)

// Page size codes for the SIZE field of the high word.
const (
	TLBSize1K uint32 = iota
	TLBSize4K
	TLBSize16K
	TLBSize64K
	TLBSize256K
	TLBSize1M
	TLBSize4M
	TLBSize16M
)

// TLBSizeBytes returns the number of bytes mapped by a SIZE field value.
func TLBSizeBytes(code uint32) uintptr {
	return uintptr(1024) << (2 * (code & 0x7))
}

// TLBSizeCode returns the smallest page size code that covers size bytes.
// The second return value is false if size exceeds the largest page.
func TLBSizeCode(size uintptr) (uint32, bool) {
	for code := TLBSize1K; code <= TLBSize16M; code++ {
		if size <= TLBSizeBytes(code) {
			return code, true
		}
	}
	return 0, false
}

// TLBEntry is the content of a single hardware TLB slot.
type TLBEntry struct {
	Hi, Lo uint32

	// TID is the process ID the entry is tagged with. TID 0 matches
	// every PID.
	TID uint8
}

// Valid returns true if the entry participates in translation.
func (e TLBEntry) Valid() bool { return e.Hi&TLBValid != 0 }

// Size returns the number of bytes mapped by the entry.
func (e TLBEntry) Size() uintptr {
	return TLBSizeBytes((e.Hi & TLBSizeMask) >> TLBSizeShift)
}

// Matches returns true if the entry translates va for the given PID.
func (e TLBEntry) Matches(va uintptr, pid uint8) bool {
	if !e.Valid() || (e.TID != 0 && e.TID != pid) {
		return false
	}

	mask := ^uint32(e.Size() - 1)
	return uint32(va)&mask == e.Hi&TLBEPNMask&mask
}

// Translate returns the physical address that va maps to through this entry.
func (e TLBEntry) Translate(va uintptr) uintptr {
	offMask := uint32(e.Size() - 1)
	return uintptr((e.Lo & TLBRPNMask &^ offMask) | (uint32(va) & offMask))
}

// Zone returns the zone selected by the entry.
func (e TLBEntry) Zone() uint32 {
	return (e.Lo & TLBZSELMask) >> TLBZSELShift
}

// TLB models the processor's fully associative translation lookaside buffer.
// Search, Read and Write correspond to the tlbsx, tlbre and tlbwe
// instructions.
type TLB struct {
	entries [NTLB]TLBEntry
}

var defaultTLB TLB

// DefaultTLB returns the TLB of the executing processor.
func DefaultTLB() *TLB { return &defaultTLB }

// Size returns the number of slots in the TLB.
func (t *TLB) Size() int { return NTLB }

// Search returns the index of the first valid slot that translates va for
// pid.
func (t *TLB) Search(va uintptr, pid uint8) (int, bool) {
	for i := range t.entries {
		if t.entries[i].Matches(va, pid) {
			return i, true
		}
	}
	return -1, false
}

// Read returns the contents of slot idx.
func (t *TLB) Read(idx int) TLBEntry { return t.entries[idx] }

// Write replaces the contents of slot idx.
func (t *TLB) Write(idx int, e TLBEntry) { t.entries[idx] = e }

// Reset invalidates every slot.
func (t *TLB) Reset() {
	for i := range t.entries {
		t.entries[i] = TLBEntry{}
	}
}
