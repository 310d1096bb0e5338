package pmm

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/hal/board"
	"ppc4xx/kernel/kfmt"
	"ppc4xx/kernel/mm"
	"ppc4xx/kernel/sync"
)

var (
	errBitmapAllocOutOfMemory     = &kernel.Error{Module: "bitmap_alloc", Message: "out of memory"}
	errBitmapAllocFrameNotManaged = &kernel.Error{Module: "bitmap_alloc", Message: "frame not managed by this allocator"}
	errBitmapAllocDoubleFree      = &kernel.Error{Module: "bitmap_alloc", Message: "frame is already free"}
)

type markAs bool

const (
	markReserved markAs = false
	markFree            = true
)

type framePool struct {
	// startFrame is the frame number for the first page in this pool.
	// each free bitmap entry i corresponds to frame (startFrame + i).
	startFrame mm.Frame

	// endFrame tracks the last frame in the pool. The total number of
	// frames is given by: (endFrame - startFrame) + 1
	endFrame mm.Frame

	// firstIndex is the managed page index of startFrame. Indices are
	// contiguous across pools so they can address flat per-page tables.
	firstIndex int

	// freeCount tracks the available pages in this pool. The allocator
	// can use this field to skip fully allocated pools without the need
	// to scan the free bitmap.
	freeCount uint32

	// freeBitmap tracks used/free pages in the pool. A set bit marks a
	// reserved frame.
	freeBitmap []uint64
}

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations across the available memory pools using bitmaps.
type BitmapAllocator struct {
	mutex sync.Spinlock

	// totalPages tracks the total number of pages across all pools.
	totalPages uint32

	// reservedPages tracks the number of reserved pages across all pools.
	reservedPages uint32

	pools []framePool
}

// init builds a pool for each available memory region and reserves the
// frames used by the kernel image and the boot allocator.
func (alloc *BitmapAllocator) init(early *BootMemAllocator) {
	alloc.setupPoolBitmaps()
	alloc.reserveKernelFrames(early)
	alloc.reserveEarlyAllocatorFrames(early)
	alloc.printStats()
}

func (alloc *BitmapAllocator) setupPoolBitmaps() {
	alloc.pools = alloc.pools[:0]
	alloc.totalPages, alloc.reservedPages = 0, 0

	board.VisitMemRegions(func(region *board.MemoryMapEntry) bool {
		if region.Type != board.MemAvailable || region.Length < uint64(mm.PageSize) {
			return true
		}

		startFrame, endFrame := regionFrames(region)
		pageCount := uint32(endFrame - startFrame + 1)

		alloc.pools = append(alloc.pools, framePool{
			startFrame: startFrame,
			endFrame:   endFrame,
			firstIndex: int(alloc.totalPages),
			freeCount:  pageCount,
			// round up to a multiple of 64 bits
			freeBitmap: make([]uint64, (pageCount+63)>>6),
		})
		alloc.totalPages += pageCount
		return true
	})
}

// markFrame updates the reservation flag for the bitmap entry that
// corresponds to the supplied frame.
func (alloc *BitmapAllocator) markFrame(poolIndex int, frame mm.Frame, flag markAs) {
	pool := &alloc.pools[poolIndex]
	relFrame := frame - pool.startFrame
	block := relFrame >> 6
	mask := uint64(1) << (63 - (relFrame & 63))

	switch flag {
	case markFree:
		pool.freeBitmap[block] &^= mask
		pool.freeCount++
		alloc.reservedPages--
	default:
		pool.freeBitmap[block] |= mask
		pool.freeCount--
		alloc.reservedPages++
	}
}

// isReserved returns true if frame is marked as reserved.
func (alloc *BitmapAllocator) isReserved(poolIndex int, frame mm.Frame) bool {
	pool := &alloc.pools[poolIndex]
	relFrame := frame - pool.startFrame
	return pool.freeBitmap[relFrame>>6]&(uint64(1)<<(63-(relFrame&63))) != 0
}

// poolForFrame returns the index of the pool that contains frame or -1 if
// the frame is not part of any pool.
func (alloc *BitmapAllocator) poolForFrame(frame mm.Frame) int {
	for poolIndex, pool := range alloc.pools {
		if frame >= pool.startFrame && frame <= pool.endFrame {
			return poolIndex
		}
	}

	return -1
}

func (alloc *BitmapAllocator) reserveKernelFrames(early *BootMemAllocator) {
	if !early.hasKernel {
		return
	}

	for frame := early.kernelStartFrame; frame <= early.kernelEndFrame; frame++ {
		if poolIndex := alloc.poolForFrame(frame); poolIndex >= 0 && !alloc.isReserved(poolIndex, frame) {
			alloc.markFrame(poolIndex, frame, markReserved)
		}
	}
}

// reserveEarlyAllocatorFrames replays the allocation sequence of the boot
// allocator so every frame it handed out stays reserved.
func (alloc *BitmapAllocator) reserveEarlyAllocatorFrames(early *BootMemAllocator) {
	var replay BootMemAllocator
	replay.init(early.kernelStartAddr, early.kernelEndAddr)

	for i := uint64(0); i < early.allocCount; i++ {
		frame, err := replay.AllocFrame()
		if err != nil {
			return
		}

		if poolIndex := alloc.poolForFrame(frame); poolIndex >= 0 && !alloc.isReserved(poolIndex, frame) {
			alloc.markFrame(poolIndex, frame, markReserved)
		}
	}
}

func (alloc *BitmapAllocator) printStats() {
	kfmt.Printf(
		"[bitmap_alloc] page stats: free: %d/%d (%d reserved)\n",
		alloc.totalPages-alloc.reservedPages,
		alloc.totalPages,
		alloc.reservedPages,
	)
}

// AllocFrame reserves and returns a physical memory frame. An error will be
// returned if no more memory can be allocated.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	for poolIndex := 0; poolIndex < len(alloc.pools); poolIndex++ {
		pool := &alloc.pools[poolIndex]
		if pool.freeCount == 0 {
			continue
		}

		pageCount := uint64(pool.endFrame - pool.startFrame + 1)
		for blockIndex, block := range pool.freeBitmap {
			if block == ^uint64(0) {
				continue
			}

			for bit := uint64(0); bit < 64; bit++ {
				relFrame := uint64(blockIndex)<<6 + bit
				if relFrame >= pageCount {
					break
				}
				if block&(uint64(1)<<(63-bit)) != 0 {
					continue
				}

				frame := pool.startFrame + mm.Frame(relFrame)
				alloc.markFrame(poolIndex, frame, markReserved)
				return frame, nil
			}
		}
	}

	return mm.InvalidFrame, errBitmapAllocOutOfMemory
}

// FreeFrame releases a frame previously allocated via a call to AllocFrame.
// Trying to release a frame not part of the allocator pools or a frame that
// is already marked as free will cause an error to be returned.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 {
		return errBitmapAllocFrameNotManaged
	}

	if !alloc.isReserved(poolIndex, frame) {
		return errBitmapAllocDoubleFree
	}

	alloc.markFrame(poolIndex, frame, markFree)
	return nil
}

// FreeCount returns the number of frames that can still be allocated.
func (alloc *BitmapAllocator) FreeCount() uint32 {
	return alloc.totalPages - alloc.reservedPages
}

// PageIndex maps a managed frame to its position in flat per-page tables.
func (alloc *BitmapAllocator) PageIndex(frame mm.Frame) (int, bool) {
	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 {
		return -1, false
	}

	pool := &alloc.pools[poolIndex]
	return pool.firstIndex + int(frame-pool.startFrame), true
}

// PageCount returns the number of frames managed by the allocator.
func (alloc *BitmapAllocator) PageCount() int {
	return int(alloc.totalPages)
}
