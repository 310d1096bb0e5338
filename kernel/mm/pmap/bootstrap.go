package pmap

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/kfmt"
	"ppc4xx/kernel/mm"
	"ppc4xx/kernel/mm/pmm"
)

var (
	// initialized is set by Init once the pv and attribute tables exist.
	// Until then no page is treated as managed.
	initialized bool

	errKernelTooLarge = &kernel.Error{Module: "pmap", Message: "kernel image does not fit in the reserved TLB entries"}
)

// Bootstrap sets up the kernel address space. It installs locked 16M
// identity entries covering the kernel image, programs the zone protection
// register, hands contexts 0 and 1 to the kernel, allocates the first kernel
// page tables and installs the TLB miss handlers. It must be called once,
// after the boot frame allocator is available.
func Bootstrap(kernelStart, kernelEnd uintptr) *kernel.Error {
	defer cpu.Splx(cpu.Splhigh())

	initialized = false
	pvHeads, pageAttrs = nil, nil
	kernelPmap = Pmap{refs: 1, ctx: KernelPID}

	tlbMgr.init(cpu.DefaultTLB())

	identityEnd := (kernelEnd + directMapSize - 1) &^ (directMapSize - 1)
	if identityEnd == 0 {
		identityEnd = directMapSize
	}
	if identityEnd/directMapSize > MaxReservedTLB {
		return errKernelTooLarge
	}
	for va := uintptr(0); va < identityEnd; va += directMapSize {
		tlbMgr.Reserve(va, va, directMapSize, 0)
	}

	cpu.WriteZPR(zpr)
	cpu.WritePID(KernelPID)

	tlbMgr.ctxBusy[0] = &kernelPmap
	tlbMgr.ctxBusy[KernelPID] = &kernelPmap

	for i := uintptr(0); i < kernelPTSegments; i++ {
		seg, err := allocSegTable()
		if err != nil {
			return err
		}
		kernelPmap.segs[segIndex(VMMinKernelAddress+i*segSize)] = seg
	}

	installTrapHandlers()

	kfmt.Printf("[pmap] kernel at 0x%x - 0x%x, %d locked TLB entries\n", kernelStart, kernelEnd, tlbMgr.nreserved)
	return nil
}

// Init allocates the pv heads and the attribute bits of every page managed
// by the physical memory allocator together with the shared pv entry pool.
// Pages entered before Init are not tracked.
func Init() {
	defer cpu.Splx(cpu.Splvm())

	pageCount := pmm.PageCount()
	pvHeads = make([]pvEntry, pageCount)
	for i := range pvHeads {
		pvHeads[i].next = pvNone
	}
	pageAttrs = make([]uint8, pageCount)
	pvPool.init(pvPoolSize)
	initialized = true

	kfmt.Printf("[pmap] %d managed pages (%dKb), %d pv pool entries\n", pageCount, uint64(mm.Size(pageCount)*mm.Size(mm.PageSize)/mm.Kb), pvPoolSize)
}

// Reserve installs a locked kernel translation of size bytes from va to pa.
// flags may request TTEInhibit, TTEGuarded or TTEWriteThru.
func Reserve(pa, va, size uintptr, flags TTE) {
	tlbMgr.Reserve(pa, va, size, flags)
}

// MapIODev returns the virtual address of a reserved translation covering
// the physical range [pa, pa+size).
func MapIODev(pa, size uintptr) (uintptr, bool) {
	return tlbMgr.MapIODev(pa, size)
}
