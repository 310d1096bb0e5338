// Package pmm manages physical memory. A boot-time allocator hands out the
// frames needed while the kernel brings up its memory management; the bitmap
// allocator then takes over and also defines the set of managed pages that
// the pmap layer keeps reverse mappings and attributes for.
package pmm

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/mm"
)

var (
	// bootMemAllocator is the page allocator used when the kernel boots.
	// It is used to bootstrap the bitmap allocator which is used for all
	// page allocations while the kernel runs.
	bootMemAllocator BootMemAllocator

	// bitmapAllocator is the standard allocator used by the kernel.
	bitmapAllocator BitmapAllocator

	// initialized is set once the bitmap allocator is active.
	initialized bool
)

// EarlyInit installs the boot allocator. The pmap bootstrap code uses it to
// carve out the kernel page tables before the rest of memory management is
// available.
func EarlyInit(kernelStart, kernelEnd uintptr) {
	initialized = false
	bootMemAllocator.init(kernelStart, kernelEnd)
	bootMemAllocator.printMemoryMap()
	mm.SetFrameAllocator(earlyAllocFrame)
	mm.SetFrameReleaser(nil)
}

// Init hands every remaining frame over to the bitmap allocator and makes it
// the system frame allocator.
func Init() *kernel.Error {
	bitmapAllocator.init(&bootMemAllocator)
	if bitmapAllocator.PageCount() == 0 {
		return errBitmapAllocOutOfMemory
	}

	mm.SetFrameAllocator(bitmapAllocFrame)
	mm.SetFrameReleaser(bitmapFreeFrame)
	initialized = true
	return nil
}

// PageIndex returns the managed page index of frame. The second return value
// is false for frames outside managed memory (devices, firmware areas) or
// if the bitmap allocator has not been initialized yet.
func PageIndex(frame mm.Frame) (int, bool) {
	if !initialized {
		return -1, false
	}
	return bitmapAllocator.PageIndex(frame)
}

// PageCount returns the number of managed pages.
func PageCount() int {
	if !initialized {
		return 0
	}
	return bitmapAllocator.PageCount()
}

// FreeCount returns the number of frames the system allocator can still hand
// out.
func FreeCount() uint32 {
	return bitmapAllocator.FreeCount()
}

func earlyAllocFrame() (mm.Frame, *kernel.Error) {
	return bootMemAllocator.AllocFrame()
}

func bitmapAllocFrame() (mm.Frame, *kernel.Error) {
	return bitmapAllocator.AllocFrame()
}

func bitmapFreeFrame(frame mm.Frame) *kernel.Error {
	return bitmapAllocator.FreeFrame(frame)
}
