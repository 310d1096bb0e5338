package pmap

import "ppc4xx/kernel/mm"

const (
	// segShift is the number of low virtual address bits that the
	// segment index leaves to the in-segment index and page offset.
	segShift = 22

	// numSegs is the number of segment (second-level) table pointers in
	// an address space.
	numSegs = 1 << (32 - segShift)

	// ptesPerSeg is the number of TTEs held by a segment table. A table
	// fills exactly one physical frame.
	ptesPerSeg = 1 << (segShift - mm.PageShift)

	// segSize is the amount of virtual address space covered by a single
	// segment table.
	segSize = uintptr(1) << segShift
)

const (
	// NumCtx is the number of TLB contexts (PIDs) the hardware can tag
	// entries with.
	NumCtx = 256

	// MinCtx is the first context handed out to user address spaces.
	MinCtx = 2

	// KernelPID is the context of the kernel address space. Context 0
	// also belongs to the kernel and tags global entries.
	KernelPID = 1

	// MaxReservedTLB is the maximum number of locked TLB slots.
	MaxReservedTLB = 16
)

const (
	// VMMinKernelAddress is the lowest address managed through the kernel
	// page tables. Kernel context accesses below it are direct mapped.
	VMMinKernelAddress = uintptr(0xc0000000)

	// VMMaxKernelAddress is the end of the kernel page table managed
	// range.
	VMMaxKernelAddress = uintptr(0xfe000000)

	// IOBase is the start of the physical device window. Translations to
	// it are always cache inhibited and guarded.
	IOBase = uintptr(0xe0000000)

	// directMapSize is the size of the entries synthesised for the kernel
	// direct map and of the locked boot mappings.
	directMapSize = uintptr(16 << 20)

	// kernelPTSegments is the number of kernel segment tables allocated
	// while bootstrapping so that early kernel mappings never need to
	// allocate memory.
	kernelPTSegments = 8
)

const (
	// zonePriv is the zone of kernel mappings. User access is denied by
	// the ZPR.
	zonePriv = 1

	// zoneUser is the zone of user mappings. Access is always controlled
	// by the TTE bits.
	zoneUser = 2
)
