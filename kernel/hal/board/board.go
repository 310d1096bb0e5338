// Package board exposes the memory layout that the 4xx boot firmware hands to
// the kernel.
package board

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is RAM available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates RAM used by the firmware that must not be
	// touched.
	MemReserved

	// MemDevice indicates an on-chip peripheral or external bus window.
	MemDevice

	// Any value >= memUnknown is reported as MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemDevice:
		return "device"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a physical memory region.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

var memoryMap []MemoryMapEntry

// SetMemoryMap installs the memory map reported by the firmware. It must be
// invoked before any other function exported by this package.
func SetMemoryMap(entries []MemoryMapEntry) {
	memoryMap = append(memoryMap[:0], entries...)
}

// VisitMemRegions invokes visitor for each region of the installed memory map
// in ascending address order as reported by the firmware.
func VisitMemRegions(visitor MemRegionVisitor) {
	for i := range memoryMap {
		entry := &memoryMap[i]
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}
	}
}
