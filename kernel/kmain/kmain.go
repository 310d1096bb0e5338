package kmain

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/driver/uart"
	"ppc4xx/kernel/hal/board"
	"ppc4xx/kernel/kfmt"
	"ppc4xx/kernel/mm/pmap"
	"ppc4xx/kernel/mm/pmm"
)

const (
	// consoleBase is the physical address of UART0 on the on-chip
	// peripheral bus.
	consoleBase  = uintptr(0xef600300)
	consoleClock = 11059200
	consoleBaud  = 115200
)

var (
	serialConsole uart.Serial

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the only Go symbol that is visible (exported) from the boot
// code. It is invoked with the memory map reported by the firmware and the
// physical addresses for the kernel start/end, with translation disabled.
//
// Kmain is not expected to return. If it does, the boot code will halt the
// CPU.
//
//go:noinline
func Kmain(memMap []board.MemoryMapEntry, kernelStart, kernelEnd uintptr) {
	board.SetMemoryMap(memMap)
	pmm.EarlyInit(kernelStart, kernelEnd)

	var err *kernel.Error
	if err = pmap.Bootstrap(kernelStart, kernelEnd); err != nil {
		kfmt.Panic(err)
	} else if err = pmm.Init(); err != nil {
		kfmt.Panic(err)
	}

	pmap.Init()
	reserveDeviceWindows()

	// The kernel runs relocated from here on; the direct map and the
	// device windows keep physical resources reachable.
	cpu.WriteMSR(cpu.ReadMSR() | cpu.MSRDR | cpu.MSRIR)
	attachConsole()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// reserveDeviceWindows installs a locked, cache inhibited mapping for every
// device region so drivers can reach their registers through
// pmap.MapIODev. Windows are placed above the kernel page table range so
// they never shadow kernel mappings.
func reserveDeviceWindows() {
	const (
		window = uint64(16 << 20)
		vaEnd  = uint64(1) << 32
	)

	nextVA := uint64(pmap.VMMaxKernelAddress)
	board.VisitMemRegions(func(entry *board.MemoryMapEntry) bool {
		if entry.Type != board.MemDevice {
			return true
		}

		for pa := entry.PhysAddress &^ (window - 1); pa < entry.PhysAddress+entry.Length; pa += window {
			if _, mapped := pmap.MapIODev(uintptr(pa), 1); mapped {
				continue
			}
			if nextVA+window > vaEnd {
				kfmt.Printf("[kmain] no virtual space left for device window at 0x%x\n", pa)
				return false
			}

			pmap.Reserve(uintptr(pa), uintptr(nextVA), uintptr(window), pmap.TTEInhibit|pmap.TTEGuarded)
			kfmt.Printf("[kmain] device window 0x%x - 0x%x at 0x%x\n", pa, pa+window, nextVA)
			nextVA += window
		}
		return true
	})
}

// attachConsole routes kernel output to UART0 unless the boot code already
// installed an output sink. Output produced so far is replayed to the port.
func attachConsole() {
	if kfmt.GetOutputSink() != nil {
		return
	}

	va, ok := pmap.MapIODev(consoleBase, uart.RegisterSpan)
	if !ok {
		return
	}

	if err := serialConsole.Init(va, consoleClock, consoleBaud); err != nil {
		return
	}
	kfmt.SetOutputSink(&serialConsole)
}
