package pmap

import (
	"testing"

	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/mm"
	"ppc4xx/kernel/trap"
)

func TestTLBMiss(t *testing.T) {
	defer setupTest(t)()

	pm := Create()
	pm.Activate()
	if err := pm.Enter(0x10000000, 0x800000, mm.ProtRead, 0); err != nil {
		t.Fatal(err)
	}
	KEnter(VMMinKernelAddress+0x1000, 0x900000, mm.ProtRead|mm.ProtWrite, 0)

	specs := []struct {
		va         uintptr
		ctx        uint8
		expOutcome Outcome
		expPA      uintptr
		expSize    uintptr
	}{
		// direct mapped kernel accesses
		{0x02345678, KernelPID, Resolved, 0x02345678, directMapSize},
		{0xfe001234, KernelPID, Resolved, 0xfe001234, directMapSize},
		// kernel page tables
		{VMMinKernelAddress + 0x1234, KernelPID, Resolved, 0x900234, mm.PageSize},
		{VMMinKernelAddress + 0x2000, KernelPID, Unmapped, 0, 0},
		{VMMinKernelAddress + 0x10000000, KernelPID, Unmapped, 0, 0},
		// user address space
		{0x10000010, pm.ctx, Resolved, 0x800010, mm.PageSize},
		{0x10001000, pm.ctx, Unmapped, 0, 0},
		{0x20000000, pm.ctx, Unmapped, 0, 0},
		// context without an owner
		{0x10000010, pm.ctx + 1, Unmapped, 0, 0},
	}

	for specIndex, spec := range specs {
		tlbMgr.FlushAll()
		before := ReadStats()

		outcome := TLBMiss(spec.va, spec.ctx)
		if outcome != spec.expOutcome {
			t.Errorf("[spec %d] expected outcome %d; got %d", specIndex, spec.expOutcome, outcome)
			continue
		}

		after := ReadStats()
		if after.Misses != before.Misses+1 {
			t.Errorf("[spec %d] expected miss counter to increase", specIndex)
		}

		if spec.expOutcome == Unmapped {
			if after.Hits != before.Hits || after.Enters != before.Enters {
				t.Errorf("[spec %d] expected no hit and no TLB load", specIndex)
			}
			continue
		}

		if after.Hits != before.Hits+1 {
			t.Errorf("[spec %d] expected hit counter to increase", specIndex)
		}

		idx, found := cpu.DefaultTLB().Search(spec.va, spec.ctx)
		if !found {
			t.Errorf("[spec %d] expected a translation to be loaded", specIndex)
			continue
		}
		entry := cpu.DefaultTLB().Read(idx)
		if got := entry.Translate(spec.va); got != spec.expPA {
			t.Errorf("[spec %d] expected translation to 0x%x; got 0x%x", specIndex, spec.expPA, got)
		}
		if got := entry.Size(); got != spec.expSize {
			t.Errorf("[spec %d] expected page size 0x%x; got 0x%x", specIndex, spec.expSize, got)
		}
		if entry.TID != spec.ctx {
			t.Errorf("[spec %d] expected entry tagged with context %d; got %d", specIndex, spec.ctx, entry.TID)
		}
	}
}

func TestTLBMissHandlers(t *testing.T) {
	defer setupTest(t)()

	pm := Create()
	pm.Activate()
	if err := pm.Enter(0x10000000, 0x800000, mm.ProtRead|mm.ProtExecute, 0); err != nil {
		t.Fatal(err)
	}
	tlbMgr.FlushAll()

	var storageFaults []trap.Vector
	for _, vec := range []trap.Vector{trap.DataStorage, trap.InstStorage} {
		vec := vec
		trap.HandleTrap(vec, func(*trap.Frame) {
			storageFaults = append(storageFaults, vec)
		})
	}

	trap.Dispatch(trap.DataTLBMiss, &trap.Frame{DEAR: 0x10000004, PID: pm.ctx})
	trap.Dispatch(trap.InstTLBMiss, &trap.Frame{SRR0: 0x10000008, PID: pm.ctx})
	if len(storageFaults) != 0 {
		t.Fatalf("expected mapped addresses to be resolved; got storage faults %v", storageFaults)
	}
	if !tlbHasEntry(0x10000000, pm.ctx) {
		t.Fatal("expected the miss handler to load the translation")
	}

	trap.Dispatch(trap.DataTLBMiss, &trap.Frame{DEAR: 0x30000000, PID: pm.ctx})
	trap.Dispatch(trap.InstTLBMiss, &trap.Frame{SRR0: 0x30000000, PID: pm.ctx})
	if len(storageFaults) != 2 || storageFaults[0] != trap.DataStorage || storageFaults[1] != trap.InstStorage {
		t.Fatalf("expected unmapped misses to raise storage exceptions; got %v", storageFaults)
	}
}

func TestInstallTrapHandlers(t *testing.T) {
	defer func(origFn func(trap.Vector, trap.Handler)) {
		handleTrapFn = origFn
	}(handleTrapFn)

	installed := make(map[trap.Vector]bool)
	handleTrapFn = func(vec trap.Vector, _ trap.Handler) {
		installed[vec] = true
	}

	installTrapHandlers()

	for _, vec := range []trap.Vector{trap.DataTLBMiss, trap.InstTLBMiss} {
		if !installed[vec] {
			t.Errorf("expected handler for vector 0x%x to be installed", uint16(vec))
		}
	}
	if len(installed) != 2 {
		t.Errorf("expected exactly 2 handlers; got %d", len(installed))
	}
}
