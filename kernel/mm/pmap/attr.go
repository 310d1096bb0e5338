package pmap

import (
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/mm"
	"ppc4xx/kernel/mm/pmm"
)

// Page attribute bits emulating the referenced and modified bits that the
// 4xx MMU does not maintain.
const (
	attrReferenced uint8 = 1 << iota
	attrModified
)

// pageAttrs holds the attribute bits of every managed page, indexed like
// pvHeads.
var pageAttrs []uint8

// pageAttr returns the attribute bits of the page at pa or nil if the page
// is not managed.
func pageAttr(pa uintptr) *uint8 {
	if !initialized {
		return nil
	}

	idx, ok := pmm.PageIndex(mm.FrameFromAddress(pa))
	if !ok || idx >= len(pageAttrs) {
		return nil
	}
	return &pageAttrs[idx]
}

func testAttr(pa uintptr, bit uint8) bool {
	defer cpu.Splx(cpu.Splvm())

	attr := pageAttr(pa)
	return attr != nil && *attr&bit != 0
}

// clearAttr clears bit and returns whether it was set.
func clearAttr(pa uintptr, bit uint8) bool {
	defer cpu.Splx(cpu.Splvm())

	attr := pageAttr(pa)
	if attr == nil {
		return false
	}

	wasSet := *attr&bit != 0
	*attr &^= bit
	return wasSet
}

// IsReferenced returns true if the managed page at pa has been accessed
// since its reference bit was last cleared.
func IsReferenced(pa uintptr) bool {
	return testAttr(pa, attrReferenced)
}

// IsModified returns true if the managed page at pa has been written since
// its modified bit was last cleared.
func IsModified(pa uintptr) bool {
	return testAttr(pa, attrModified)
}

// ClearReference clears the reference bit of the page at pa and returns its
// previous value. Every mapping of the page is removed so that the next
// access faults and sets the bit again.
func ClearReference(pa uintptr) bool {
	wasSet := clearAttr(pa, attrReferenced)
	PageProtect(pa, mm.ProtNone)
	return wasSet
}

// ClearModify clears the modified bit of the page at pa and returns its
// previous value. Every mapping of the page loses write access so that the
// next store faults and sets the bit again.
func ClearModify(pa uintptr) bool {
	wasSet := clearAttr(pa, attrModified)
	PageProtect(pa, mm.ProtRead|mm.ProtExecute)
	return wasSet
}
