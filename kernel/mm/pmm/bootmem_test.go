package pmm

import (
	"testing"

	"ppc4xx/kernel/hal/board"
	"ppc4xx/kernel/mm"
)

var testMemoryMap = []board.MemoryMapEntry{
	// 256K of firmware data
	{PhysAddress: 0, Length: 0x40000, Type: board.MemReserved},
	// 1M of RAM starting at 256K. The end is not page aligned.
	{PhysAddress: 0x40000, Length: 0x100000 + 0x123, Type: board.MemAvailable},
	// peripheral window
	{PhysAddress: 0xef600000, Length: 0x1000, Type: board.MemDevice},
	// 64K of RAM with an unaligned start
	{PhysAddress: 0x200010, Length: 0x10000, Type: board.MemAvailable},
}

func TestBootMemoryAllocator(t *testing.T) {
	board.SetMemoryMap(testMemoryMap)

	specs := []struct {
		kernelStart, kernelEnd uintptr
		expAllocCount          uint64
	}{
		{
			// kernel outside available memory
			0, 0,
			// region 1: 256 frames, region 2: 15 whole frames
			256 + 15,
		},
		{
			// kernel occupies the first 16 frames of region 1
			0x40000, 0x50000,
			256 + 15 - 16,
		},
		{
			// kernel end is not page aligned
			0x40000, 0x40001,
			256 + 15 - 1,
		},
		{
			// kernel sits at the end of region 1
			0x130000, 0x140000,
			256 + 15 - 16,
		},
	}

	for specIndex, spec := range specs {
		var alloc BootMemAllocator
		alloc.init(spec.kernelStart, spec.kernelEnd)

		var (
			allocCount uint64
			lastFrame  mm.Frame
		)
		for {
			frame, err := alloc.AllocFrame()
			if err != nil {
				if err != errBootAllocOutOfMemory {
					t.Errorf("[spec %d] expected to get errBootAllocOutOfMemory; got %v", specIndex, err)
				}
				break
			}

			if allocCount != 0 && frame <= lastFrame {
				t.Errorf("[spec %d] expected allocated frames to be ascending; got %d after %d", specIndex, frame, lastFrame)
			}

			if alloc.isKernelFrame(frame) {
				t.Errorf("[spec %d] allocated frame %d overlaps the kernel image", specIndex, frame)
			}

			lastFrame = frame
			allocCount++
		}

		if allocCount != spec.expAllocCount {
			t.Errorf("[spec %d] expected allocator to allocate %d frames; allocated %d", specIndex, spec.expAllocCount, allocCount)
		}

		if alloc.allocCount != allocCount {
			t.Errorf("[spec %d] expected allocCount to be %d; got %d", specIndex, allocCount, alloc.allocCount)
		}
	}
}

func TestBootMemoryAllocatorRegionFrames(t *testing.T) {
	start, end := regionFrames(&testMemoryMap[3])
	if exp := mm.Frame(0x201); start != exp {
		t.Errorf("expected start frame %d; got %d", exp, start)
	}
	if exp := mm.Frame(0x20f); end != exp {
		t.Errorf("expected end frame %d; got %d", exp, end)
	}
}
