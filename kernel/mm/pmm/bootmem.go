package pmm

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/hal/board"
	"ppc4xx/kernel/kfmt"
	"ppc4xx/kernel/mm"
)

var (
	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// BootMemAllocator implements a rudimentary physical memory allocator which is
// used to bootstrap the kernel.
//
// The allocator uses the memory map reported by the board firmware to locate
// free memory and hands out frames in ascending order, skipping the frames
// occupied by the kernel image. Frames can not be freed; once the bitmap
// allocator is initialized it takes over every frame the boot allocator has
// handed out.
type BootMemAllocator struct {
	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocFrame tracks the last allocated frame number.
	lastAllocFrame mm.Frame

	// Keep track of kernel location so we exclude this region.
	kernelStartAddr, kernelEndAddr   uintptr
	kernelStartFrame, kernelEndFrame mm.Frame
	hasKernel                        bool
}

// init sets up the boot memory allocator internal state.
func (alloc *BootMemAllocator) init(kernelStart, kernelEnd uintptr) {
	alloc.allocCount = 0
	alloc.lastAllocFrame = 0
	alloc.kernelStartAddr = kernelStart
	alloc.kernelEndAddr = kernelEnd
	alloc.hasKernel = kernelEnd > kernelStart
	if alloc.hasKernel {
		alloc.kernelStartFrame = mm.FrameFromAddress(kernelStart)
		alloc.kernelEndFrame = mm.FrameFromAddress(mm.RoundPage(kernelEnd)) - 1
	}
}

// isKernelFrame returns true if frame holds part of the kernel image.
func (alloc *BootMemAllocator) isKernelFrame(frame mm.Frame) bool {
	return alloc.hasKernel && frame >= alloc.kernelStartFrame && frame <= alloc.kernelEndFrame
}

// regionFrames returns the first and last whole frames of a region. Reported
// addresses may not be page-aligned so the start is rounded up and the end
// rounded down.
func regionFrames(region *board.MemoryMapEntry) (mm.Frame, mm.Frame) {
	pageSizeMinus1 := uint64(mm.PageSize - 1)
	start := mm.Frame(((region.PhysAddress + pageSizeMinus1) &^ pageSizeMinus1) >> mm.PageShift)
	end := mm.Frame(((region.PhysAddress+region.Length)&^pageSizeMinus1)>>mm.PageShift) - 1
	return start, end
}

// AllocFrame scans the available memory regions and reserves the next free
// frame. It returns an error if no more memory can be allocated.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	var err = errBootAllocOutOfMemory

	board.VisitMemRegions(func(region *board.MemoryMapEntry) bool {
		if region.Type != board.MemAvailable || region.Length < uint64(mm.PageSize) {
			return true
		}

		regionStartFrame, regionEndFrame := regionFrames(region)

		// Skip over already exhausted regions
		if alloc.allocCount != 0 && alloc.lastAllocFrame >= regionEndFrame {
			return true
		}

		next := alloc.lastAllocFrame + 1
		if alloc.allocCount == 0 || next < regionStartFrame {
			next = regionStartFrame
		}

		// Jump over the kernel image
		if alloc.isKernelFrame(next) {
			next = alloc.kernelEndFrame + 1
		}

		if next > regionEndFrame {
			return true
		}

		alloc.lastAllocFrame = next
		err = nil
		return false
	})

	if err != nil {
		return mm.InvalidFrame, err
	}

	alloc.allocCount++
	return alloc.lastAllocFrame, nil
}

// printMemoryMap prints out the system's memory map and the kernel location.
func (alloc *BootMemAllocator) printMemoryMap() {
	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mm.Size
	board.VisitMemRegions(func(region *board.MemoryMapEntry) bool {
		kfmt.Printf("\t[0x%8x - 0x%8x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == board.MemAvailable {
			totalFree += mm.Size(region.Length)
		}
		return true
	})
	kfmt.Printf("[boot_mem_alloc] available memory: %dKb\n", uint64(totalFree/mm.Kb))
	kfmt.Printf("[boot_mem_alloc] kernel loaded at 0x%x - 0x%x\n", alloc.kernelStartAddr, alloc.kernelEndAddr)
}
