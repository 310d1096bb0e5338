package pmap

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/kfmt"
)

var (
	// ctxFlushFn is mocked by tests.
	ctxFlushFn = (*TLBManager).ctxFlush

	errCtxExhausted  = &kernel.Error{Module: "pmap", Message: "no TLB context can be reclaimed"}
	errFreeKernelCtx = &kernel.Error{Module: "pmap", Message: "attempt to free the kernel context"}
)

// ctxAlloc assigns a context to pm and returns it. Contexts are handed out
// round-robin starting after the last one issued. A context that is still
// owned is taken away from its owner once every TLB entry tagged with it has
// been invalidated; contexts with locked entries are skipped. If no context
// in the user range can be reclaimed the system halts.
func (m *TLBManager) ctxAlloc(pm *Pmap) uint8 {
	if pm == &kernelPmap {
		kfmt.Printf("[pmap] ctxAlloc: called for the kernel address space\n")
		return 0
	}

	defer cpu.Splx(cpu.Splvm())

	// Prefer a free context; when every context is owned steal the one
	// after the last issued.
	cnum, found := m.nextCtx, false
	for i := MinCtx; i < NumCtx && !found; i++ {
		cnum = ctxAfter(cnum)
		found = m.ctxBusy[cnum] == nil
	}
	if !found {
		cnum = ctxAfter(m.nextCtx)
	}

	for tries := 1; !ctxFlushFn(m, uint8(cnum)); tries++ {
		if tries == NumCtx-MinCtx {
			kfmt.Panic(errCtxExhausted)
		}
		cnum = ctxAfter(cnum)
	}

	if owner := m.ctxBusy[cnum]; owner != nil {
		owner.ctx = 0
		m.stats.CtxSteals++
	}

	m.ctxBusy[cnum] = pm
	m.nextCtx = cnum
	pm.ctx = uint8(cnum)
	return pm.ctx
}

// ctxFree releases the context held by pm after invalidating its TLB
// entries. Releasing a kernel context is fatal.
func (m *TLBManager) ctxFree(pm *Pmap) {
	ctx := pm.ctx
	if ctx < MinCtx {
		kfmt.Panic(errFreeKernelCtx)
	}

	defer cpu.Splx(cpu.Splvm())

	if owner := m.ctxBusy[ctx]; owner != pm {
		kfmt.Printf("[pmap] ctxFree: context %d is not owned by the address space\n", ctx)
	} else {
		m.ctxBusy[ctx] = nil
	}

	m.ctxFlush(ctx)
	pm.ctx = 0
}

// ctxAfter returns the user context that follows cnum.
func ctxAfter(cnum int) int {
	if cnum++; cnum >= NumCtx {
		cnum = MinCtx
	}
	return cnum
}
