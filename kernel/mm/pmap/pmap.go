// Package pmap implements the machine dependent layer of the virtual memory
// system for PowerPC 4xx processors.
//
// The 4xx family has no hardware page table walker. Each address space keeps
// a sparse two-level table of TTEs that the TLB miss handler consults to
// load translations into the 64-entry TLB. Translations are tagged with a
// per address space context (PID); contexts are scarce and are recycled
// when they run out. Every mapping of a managed physical page is also
// recorded in a reverse mapping (pv) list so that page level operations can
// reach all of its mappers.
package pmap

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/kfmt"
	"ppc4xx/kernel/mm"
)

// Pmap describes the mappings of an address space.
type Pmap struct {
	refs     int
	ctx      uint8
	resident int
	wired    int
	segs     [numSegs]*segTable
}

var (
	kernelPmap Pmap

	errKEnterFailed = &kernel.Error{Module: "pmap", Message: "unable to allocate kernel page table"}
)

// Kernel returns the kernel address space.
func Kernel() *Pmap {
	return &kernelPmap
}

// Create returns a new empty address space with a single reference. A
// context is assigned the first time the address space is activated.
func Create() *Pmap {
	return &Pmap{refs: 1}
}

// Reference adds a reference to the address space.
func (pm *Pmap) Reference() {
	pm.refs++
}

// Destroy drops a reference to the address space. Dropping the last
// reference releases its page tables and its context.
func (pm *Pmap) Destroy() {
	if pm.refs--; pm.refs > 0 {
		return
	}

	ptDestroy(pm)
	if pm.ctx != 0 {
		tlbMgr.ctxFree(pm)
	}
}

// Context returns the TLB context assigned to the address space or 0 if it
// has none.
func (pm *Pmap) Context() uint8 {
	return pm.ctx
}

// ResidentCount returns the number of pages mapped by the address space.
func (pm *Pmap) ResidentCount() int {
	return pm.resident
}

// WiredCount returns the number of wired pages of the address space.
func (pm *Pmap) WiredCount() int {
	return pm.wired
}

// zone returns the TTE zone of the address space's mappings.
func (pm *Pmap) zone() uint32 {
	if pm == &kernelPmap {
		return zonePriv
	}
	return zoneUser
}

// Enter maps the page at va to the physical page at pa with protection prot.
// Any existing mapping at va is removed first. Addresses beyond 4G are
// rejected like a page table allocation failure.
//
// The access type recorded in flags marks managed pages as referenced and,
// for writes, modified. Write permission is only granted to a managed page
// that is already modified or is being entered for a write, so that the
// first write to a clean page faults and can be recorded. Resource shortage
// is returned as an error if flags contain MapCanFail and halts the system
// otherwise.
func (pm *Pmap) Enter(va, pa uintptr, prot mm.Prot, flags mm.MapFlag) *kernel.Error {
	va, pa = mm.TruncPage(va), mm.TruncPage(pa)
	pm.Remove(va, va+mm.PageSize)

	defer cpu.Splx(cpu.Splvm())

	access := flags.Access()
	if flags&mm.MapWired != 0 {
		access |= prot
	}

	var tteFlags TTE
	switch {
	case flags&mm.MapNoCache != 0:
		tteFlags |= TTEInhibit
	case flags&mm.MapWriteThrough != 0:
		tteFlags |= TTEWriteThru
	}
	if prot&mm.ProtExecute != 0 {
		tteFlags |= TTEEX
	}

	writable := prot&mm.ProtWrite != 0
	if attr := pageAttr(pa); attr != nil {
		if err := pvEnter(pm, va, pa, flags); err != nil {
			return err
		}

		if access != 0 {
			*attr |= attrReferenced
		}
		if access&mm.ProtWrite != 0 {
			*attr |= attrModified
		}
		writable = writable && *attr&attrModified != 0
	}
	if writable {
		tteFlags |= TTEWR
	}

	tte := makeTTE(pa, TTESize4K, pm.zone(), tteFlags)
	if _, err := pteEnter(pm, va, tte); err != nil {
		pvRemove(pm, va, pa)
		if flags&mm.MapCanFail == 0 {
			kfmt.Panic(err)
		}
		return err
	}

	// Preload the translation for the access that is being serviced.
	if flags&mm.MapWired == 0 && pm.ctx != 0 {
		tlbMgr.Enter(pm.ctx, va, tte)
	}

	if prot&mm.ProtExecute != 0 && tte&TTEInhibit == 0 {
		syncICachePhys(pa, mm.PageSize)
	}

	return nil
}

// Remove unmaps every page in [sva, eva). Pages that are not mapped are
// skipped.
func (pm *Pmap) Remove(sva, eva uintptr) {
	defer cpu.Splx(cpu.Splvm())

	for va := mm.TruncPage(sva); va < eva && vaValid(va); va += mm.PageSize {
		pte := pteFind(pm, va)
		if pte == nil || *pte == 0 {
			continue
		}

		pvRemove(pm, va, pte.PhysAddress())
		_, _ = pteEnter(pm, va, 0)
	}
}

// KEnter maps va to pa in the kernel address space. Kernel mappings are not
// tracked in pv lists, carry no referenced/modified emulation and are always
// executable. Failing to allocate a page table is fatal.
func KEnter(va, pa uintptr, prot mm.Prot, flags mm.MapFlag) {
	va, pa = mm.TruncPage(va), mm.TruncPage(pa)

	defer cpu.Splx(cpu.Splvm())

	tteFlags := TTEEX
	if prot&mm.ProtWrite != 0 {
		tteFlags |= TTEWR
	}
	switch {
	case flags&mm.MapNoCache != 0:
		tteFlags |= TTEInhibit
	case flags&mm.MapWriteThrough != 0:
		tteFlags |= TTEWriteThru
	}

	if _, err := pteEnter(&kernelPmap, va, makeTTE(pa, TTESize4K, zonePriv, tteFlags)); err != nil {
		kfmt.Panic(errKEnterFailed)
	}
}

// KRemove removes the kernel mappings in [va, va+size).
func KRemove(va, size uintptr) {
	defer cpu.Splx(cpu.Splvm())

	for end := va + size; va < end && vaValid(va); va += mm.PageSize {
		_, _ = pteEnter(&kernelPmap, mm.TruncPage(va), 0)
	}
}

// Extract returns the physical address that va maps to. The page offset of
// va is preserved. The second return value is false if va is not mapped.
func (pm *Pmap) Extract(va uintptr) (uintptr, bool) {
	defer cpu.Splx(cpu.Splvm())

	pte := pteFind(pm, va)
	if pte == nil || *pte == 0 {
		return 0, false
	}

	return pte.PhysAddress() | va&(pte.Size()-1), true
}

// Protect restricts the protection of the pages in [sva, eva) to prot.
// Removing read access unmaps the pages; protection is never raised.
func (pm *Pmap) Protect(sva, eva uintptr, prot mm.Prot) {
	if prot&mm.ProtRead == 0 {
		pm.Remove(sva, eva)
		return
	}

	var clear TTE
	if prot&mm.ProtWrite == 0 {
		clear |= TTEWR
	}
	if prot&mm.ProtExecute == 0 {
		clear |= TTEEX
	}
	if clear == 0 {
		return
	}

	defer cpu.Splx(cpu.Splvm())

	for va := mm.TruncPage(sva); va < eva && vaValid(va); va += mm.PageSize {
		if pte := pteFind(pm, va); pte != nil && *pte != 0 {
			_, _ = pteEnter(pm, va, *pte&^clear)
		}
	}
}

// PageProtect restricts the protection of every mapping of the managed
// physical page at pa. ProtNone removes all of them.
func PageProtect(pa uintptr, prot mm.Prot) {
	pa = mm.TruncPage(pa)

	defer cpu.Splx(cpu.Splvm())

	if prot&mm.ProtRead == 0 {
		pvDrain(pa, func(pm *Pmap, va uintptr) {
			pm.Remove(va, va+mm.PageSize)
		})
		return
	}

	pvForEach(pa, func(pm *Pmap, va uintptr) {
		pm.Protect(va, va+mm.PageSize, prot)
	})
}

// Unwire clears the wired attribute of the mapping at va.
func (pm *Pmap) Unwire(va uintptr) {
	va = mm.TruncPage(va)

	defer cpu.Splx(cpu.Splvm())

	pa, ok := pm.Extract(va)
	if !ok {
		return
	}

	if pv := pvFind(pm, va, mm.TruncPage(pa)); pv != nil && pv.wired() {
		pv.va &^= pvWired
		pm.wired--
	}
}

// Activate loads the context of the address space into the PID register,
// assigning one first if needed.
func (pm *Pmap) Activate() {
	if pm.ctx == 0 {
		tlbMgr.ctxAlloc(pm)
	}
	cpu.WritePID(pm.ctx)
}

// SyncICacheRange makes the instruction cache coherent with data written to
// [va, va+size) in the address space. Cache block operations are translated
// through the data MMU so the address space needs a context; one is
// assigned if it has none.
func (pm *Pmap) SyncICacheRange(va, size uintptr) {
	ctx := pm.ctx
	if ctx == 0 {
		ctx = tlbMgr.ctxAlloc(pm)
	}

	s := cpu.Splhigh()
	oldPID := cpu.ReadPID()
	cpu.WritePID(ctx)

	for line, end := va&^(cpu.CacheLineSize-1), va+size; line < end; line += cpu.CacheLineSize {
		cpu.DataCacheBlockStore(line)
		cpu.InstCacheBlockInvalidate(line)
	}

	cpu.WritePID(oldPID)
	cpu.Sync()
	cpu.Splx(s)
}

// syncICachePhys synchronises the instruction cache for a physical range
// through the kernel direct map.
func syncICachePhys(pa, size uintptr) {
	kernelPmap.SyncICacheRange(pa, size)
}

// ZeroPage clears the physical page at pa.
func ZeroPage(pa uintptr) {
	cpu.RAM().Zero(mm.TruncPage(pa), mm.PageSize)
}

// CopyPage copies the physical page at src to dst.
func CopyPage(src, dst uintptr) {
	cpu.RAM().Copy(mm.TruncPage(dst), mm.TruncPage(src), mm.PageSize)
}

// VirtualSpace returns the range of kernel virtual addresses managed
// through the kernel page tables.
func VirtualSpace() (uintptr, uintptr) {
	return VMMinKernelAddress, VMMaxKernelAddress
}
