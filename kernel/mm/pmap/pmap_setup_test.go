package pmap

import (
	"testing"

	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/hal/board"
	"ppc4xx/kernel/mm"
	"ppc4xx/kernel/mm/pmm"
	"ppc4xx/kernel/trap"
)

const (
	testKernelStart = uintptr(0x100000)
	testKernelEnd   = uintptr(0x200000)
)

var testMemoryMap = []board.MemoryMapEntry{
	{PhysAddress: 0, Length: 64 << 20, Type: board.MemAvailable},
	{PhysAddress: 0xef600000, Length: 0x1000, Type: board.MemDevice},
}

// setupTest boots the memory management code on a 64M machine. The returned
// function restores the global state.
func setupTest(t *testing.T) func() {
	t.Helper()

	cpu.Reset()
	board.SetMemoryMap(testMemoryMap)
	pmm.EarlyInit(testKernelStart, testKernelEnd)
	if err := Bootstrap(testKernelStart, testKernelEnd); err != nil {
		t.Fatal(err)
	}
	if err := pmm.Init(); err != nil {
		t.Fatal(err)
	}
	Init()

	return func() {
		for _, vec := range []trap.Vector{trap.DataTLBMiss, trap.InstTLBMiss, trap.DataStorage, trap.InstStorage} {
			trap.HandleTrap(vec, nil)
		}
		mm.SetFrameAllocator(nil)
		mm.SetFrameReleaser(nil)
		initialized = false
		cpu.Reset()
	}
}

// expectHalt runs fn and fails the test unless it halts the processor.
func expectHalt(t *testing.T, fn func()) {
	t.Helper()

	defer func() {
		if err := recover(); err == nil || !cpu.Halted() {
			t.Fatalf("expected the system to halt; recovered %v", err)
		}
	}()

	fn()
}

// tlbHasEntry returns true if the processor TLB translates va for ctx.
func tlbHasEntry(va uintptr, ctx uint8) bool {
	_, found := cpu.DefaultTLB().Search(va, ctx)
	return found
}

// pvList returns the mappings recorded for pa.
func pvList(pa uintptr) map[*Pmap][]uintptr {
	list := make(map[*Pmap][]uintptr)
	pvForEach(pa, func(pm *Pmap, va uintptr) {
		list[pm] = append(list[pm], va)
	})
	return list
}
