package pmap

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/kfmt"
	"ppc4xx/kernel/mm"
)

// segTable is a second-level page table. Each table owns the physical frame
// that backs it; the frame is returned to the allocator when the address
// space is destroyed.
type segTable struct {
	frame   mm.Frame
	entries [ptesPerSeg]TTE
}

var (
	errNoMemory    = &kernel.Error{Module: "pmap", Message: "out of memory allocating page table"}
	errPmapNotIdle = &kernel.Error{Module: "pmap", Message: "destroying address space with resident or wired pages"}
	errBadAddress  = &kernel.Error{Module: "pmap", Message: "virtual address outside the 32-bit address space"}
)

// maxVA is the last effective address of the processor.
const maxVA = uint64(1)<<32 - 1

// vaValid returns false for host addresses the 32-bit MMU cannot express.
func vaValid(va uintptr) bool {
	return uint64(va) <= maxVA
}

// segIndex returns the index of the segment table that maps va.
func segIndex(va uintptr) uintptr {
	return (va >> segShift) & (numSegs - 1)
}

// ptIndex returns the index of the TTE that maps va within its segment.
func ptIndex(va uintptr) uintptr {
	return (va >> mm.PageShift) & (ptesPerSeg - 1)
}

// pteFind returns a pointer to the TTE that maps va or nil if the segment
// table for va has not been allocated. It never allocates and is safe to
// call from the TLB miss path. Addresses beyond 4G are never mapped.
func pteFind(pm *Pmap, va uintptr) *TTE {
	if !vaValid(va) {
		return nil
	}

	seg := pm.segs[segIndex(va)]
	if seg == nil {
		return nil
	}
	return &seg.entries[ptIndex(va)]
}

// allocSegTable allocates a zeroed segment table.
func allocSegTable() (*segTable, *kernel.Error) {
	frame, err := mm.AllocFrame()
	if err != nil {
		return nil, errNoMemory
	}

	return &segTable{frame: frame}, nil
}

// pteEnter stores tte as the entry for va allocating the segment table if
// needed. Storing an empty entry into a missing segment does nothing and
// returns false. The TLB entry for (pm, va) is always flushed after the
// store and the resident counter follows empty/non-empty transitions.
func pteEnter(pm *Pmap, va uintptr, tte TTE) (bool, *kernel.Error) {
	if !vaValid(va) {
		if tte == 0 {
			return false, nil
		}
		return false, errBadAddress
	}

	segIdx := segIndex(va)
	if pm.segs[segIdx] == nil {
		if tte == 0 {
			return false, nil
		}

		seg, err := allocSegTable()
		if err != nil {
			return false, err
		}
		pm.segs[segIdx] = seg
	}

	pte := &pm.segs[segIdx].entries[ptIndex(va)]
	old := *pte
	*pte = tte

	tlbMgr.Flush(va, pm.ctx)

	switch {
	case old == 0 && tte != 0:
		pm.resident++
	case old != 0 && tte == 0:
		pm.resident--
	}

	return true, nil
}

// ptDestroy releases every segment table owned by pm.
func ptDestroy(pm *Pmap) {
	if diagnostic && (pm.resident != 0 || pm.wired != 0) {
		kfmt.Printf("[pmap] destroy: %d resident, %d wired\n", pm.resident, pm.wired)
		kfmt.Panic(errPmapNotIdle)
	}

	for segIdx, seg := range pm.segs {
		if seg == nil {
			continue
		}

		if err := mm.FreeFrame(seg.frame); err != nil && diagnostic {
			kfmt.Printf("[pmap] destroy: releasing segment %d: %s\n", segIdx, err.Message)
			kfmt.Panic(err)
		}
		pm.segs[segIdx] = nil
	}
}
