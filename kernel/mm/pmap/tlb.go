package pmap

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/kfmt"
)

// HardwareTLB is implemented by the processor's translation lookaside
// buffer. Search, Read and Write map to the tlbsx, tlbre and tlbwe
// instructions.
type HardwareTLB interface {
	Search(va uintptr, pid uint8) (int, bool)
	Read(idx int) cpu.TLBEntry
	Write(idx int, e cpu.TLBEntry)
}

type slotFlag uint8

const (
	slotUsed slotFlag = 1 << iota
	slotRef
	slotLocked
)

// tlbSlot is the software state kept for each hardware TLB slot.
type tlbSlot struct {
	va    uintptr
	size  uintptr
	ctx   uint8
	flags slotFlag
}

// covers returns true if the slot's page contains addr.
func (s *tlbSlot) covers(addr uintptr) bool {
	return s.size != 0 && addr&^(s.size-1) == s.va
}

// tlbReservation describes a locked TLB entry installed by Reserve.
type tlbReservation struct {
	pa, va, size uintptr
}

// Stats counts TLB manager events.
type Stats struct {
	// Misses is the number of TLB misses handled.
	Misses uint64

	// Hits is the number of misses resolved with a translation.
	Hits uint64

	// Enters is the number of entries loaded into the TLB.
	Enters uint64

	// Flushes is the number of entries invalidated by Flush.
	Flushes uint64

	// CtxSteals is the number of contexts taken away from an address
	// space that still owned them.
	CtxSteals uint64
}

// TLBManager owns the hardware TLB. It tracks which slots are in use,
// selects victims for new entries, keeps locked entries for the lifetime of
// the system and maps TLB contexts to address spaces.
type TLBManager struct {
	hw    HardwareTLB
	slots [cpu.NTLB]tlbSlot

	// nextVictim is the clock hand of the replacement policy. It only
	// moves over [nreserved, NTLB).
	nextVictim int
	nreserved  int

	reservations [MaxReservedTLB]tlbReservation

	// ctxBusy maps each context to the address space that owns it.
	ctxBusy [NumCtx]*Pmap
	nextCtx int

	stats Stats
}

var (
	// tlbMgr is the TLB manager of the processor. It is set up by
	// Bootstrap and only touched with the priority level raised.
	tlbMgr TLBManager

	// stackPointerFn is mocked by tests.
	stackPointerFn = cpu.StackPointer

	errNoTLBVictim      = &kernel.Error{Module: "pmap", Message: "no evictable TLB slot"}
	errLockedTLBVictim  = &kernel.Error{Module: "pmap", Message: "TLB victim is a locked slot"}
	errTLBReserveFull   = &kernel.Error{Module: "pmap", Message: "no free TLB slots to reserve"}
	errTLBReserveSize   = &kernel.Error{Module: "pmap", Message: "unsupported reserved TLB entry size"}
	errTLBReserveLocked = &kernel.Error{Module: "pmap", Message: "reserved TLB slot already locked"}
	errTLBReserveRange  = &kernel.Error{Module: "pmap", Message: "reserved TLB entry overlaps the kernel page table range"}
)

// init resets the manager state and invalidates every slot of hw.
func (m *TLBManager) init(hw HardwareTLB) {
	*m = TLBManager{hw: hw}
	for idx := range m.slots {
		hw.Write(idx, cpu.TLBEntry{})
	}
	m.nextVictim = 0
	m.nextCtx = MinCtx
}

// Stats returns a snapshot of the event counters.
func (m *TLBManager) Stats() Stats {
	return m.stats
}

// findVictim advances the clock hand to a slot that can be replaced. Unused
// and unreferenced slots are selected; referenced slots lose their reference
// bit. The kernel slot that maps the current stack page is never selected.
func (m *TLBManager) findVictim() int {
	// Two passes age every reference bit so a third can always select a
	// slot unless they are all pinned.
	for tries := 0; tries < 3*cpu.NTLB; tries++ {
		if m.nextVictim++; m.nextVictim >= cpu.NTLB || m.nextVictim < m.nreserved {
			m.nextVictim = m.nreserved
		}

		slot := &m.slots[m.nextVictim]
		if slot.flags&slotUsed != 0 && slot.flags&(slotLocked|slotRef) != 0 {
			slot.flags &^= slotRef
			continue
		}

		if slot.flags&slotUsed != 0 && slot.ctx == KernelPID && slot.covers(stackPointerFn()) {
			slot.flags |= slotRef
			continue
		}

		return m.nextVictim
	}

	kfmt.Panic(errNoTLBVictim)
	return -1
}

// Enter loads a translation of va through tte for ctx into the TLB.
func (m *TLBManager) Enter(ctx uint8, va uintptr, tte TTE) {
	defer cpu.Splx(cpu.Splhigh())

	m.stats.Enters++
	entry := tte.tlbEntry(ctx, va)

	idx := m.findVictim()
	if idx < m.nreserved || idx >= cpu.NTLB || m.slots[idx].flags&slotLocked != 0 {
		kfmt.Panic(errLockedTLBVictim)
	}

	m.slots[idx] = tlbSlot{
		va:    uintptr(entry.Hi & cpu.TLBEPNMask),
		size:  entry.Size(),
		ctx:   ctx,
		flags: slotUsed | slotRef,
	}
	m.hw.Write(idx, entry)
}

// invalidate clears slot idx.
func (m *TLBManager) invalidate(idx int) {
	m.hw.Write(idx, cpu.TLBEntry{})
	m.slots[idx].flags = 0
}

// Flush invalidates the entry translating va for ctx, if any. Context 0 has
// no entries of its own so flushing it does nothing. Locked entries are
// never flushed.
func (m *TLBManager) Flush(va uintptr, ctx uint8) {
	if ctx == 0 {
		return
	}

	defer cpu.Splx(cpu.Splhigh())

	idx, found := m.hw.Search(va, ctx)
	if !found || m.slots[idx].flags&slotLocked != 0 {
		return
	}

	// The search also matches global entries; those belong to no context.
	if m.hw.Read(idx).TID != ctx {
		return
	}

	m.stats.Flushes++
	m.invalidate(idx)
}

// FlushAll invalidates every slot that is not locked.
func (m *TLBManager) FlushAll() {
	defer cpu.Splx(cpu.Splhigh())

	for idx := m.nreserved; idx < cpu.NTLB; idx++ {
		if m.slots[idx].flags&slotLocked == 0 {
			m.invalidate(idx)
		}
	}
}

// ctxFlush invalidates every slot tagged with ctx. It returns false, leaving
// the remaining slots untouched, as soon as it finds a locked slot with that
// context.
func (m *TLBManager) ctxFlush(ctx uint8) bool {
	defer cpu.Splx(cpu.Splhigh())

	for idx := range m.slots {
		slot := &m.slots[idx]
		if slot.flags&slotUsed == 0 || slot.ctx != ctx {
			continue
		}

		if slot.flags&slotLocked != 0 {
			kfmt.Printf("[pmap] context %d has a locked TLB entry at slot %d\n", ctx, idx)
			return false
		}
		m.invalidate(idx)
	}

	return true
}

// Reserve installs a permanent kernel translation of size bytes at va to pa
// in the next free reserved slot. The slot is locked so it is never evicted
// or flushed. Running out of reserved slots is fatal, as is a va range that
// overlaps [VMMinKernelAddress, VMMaxKernelAddress): a locked entry there
// would shadow page table updates.
func (m *TLBManager) Reserve(pa, va, size uintptr, flags TTE) {
	defer cpu.Splx(cpu.Splhigh())

	if m.nreserved >= MaxReservedTLB {
		kfmt.Panic(errTLBReserveFull)
	}

	sizeCode, ok := cpu.TLBSizeCode(size)
	if !ok || cpu.TLBSizeBytes(sizeCode) != size {
		kfmt.Panic(errTLBReserveSize)
	}

	start := uint64(va) &^ uint64(size-1)
	if start < uint64(VMMaxKernelAddress) && start+uint64(size) > uint64(VMMinKernelAddress) {
		kfmt.Panic(errTLBReserveRange)
	}

	idx := m.nreserved
	if m.slots[idx].flags&slotLocked != 0 {
		kfmt.Panic(errTLBReserveLocked)
	}

	// Evict whatever the replacement policy placed in the slot.
	if m.slots[idx].flags&slotUsed != 0 {
		m.invalidate(idx)
	}

	pageMask := uint32(size - 1)
	lo := uint32(pa)&cpu.TLBRPNMask&^pageMask | cpu.TLBEX | cpu.TLBWR | uint32(flags&tteLoMask)
	if lo&cpu.TLBZSELMask == 0 {
		lo |= zonePriv << cpu.TLBZSELShift
	}

	m.hw.Write(idx, cpu.TLBEntry{
		Hi:  uint32(va)&cpu.TLBEPNMask&^pageMask | sizeCode<<cpu.TLBSizeShift | cpu.TLBValid,
		Lo:  lo,
		TID: KernelPID,
	})

	m.slots[idx] = tlbSlot{va: va &^ uintptr(pageMask), size: size, ctx: KernelPID, flags: slotUsed | slotLocked}
	m.reservations[idx] = tlbReservation{pa: pa &^ uintptr(pageMask), va: va &^ uintptr(pageMask), size: size}
	m.nreserved++

	if m.nextVictim < m.nreserved {
		m.nextVictim = m.nreserved - 1
	}
}

// MapIODev returns the virtual address at which a reserved entry maps the
// physical range [pa, pa+size). The second return value is false if no
// reserved entry covers the whole range.
func (m *TLBManager) MapIODev(pa, size uintptr) (uintptr, bool) {
	for idx := 0; idx < m.nreserved; idx++ {
		rv := &m.reservations[idx]
		if pa >= rv.pa && pa+size <= rv.pa+rv.size {
			return rv.va + (pa - rv.pa), true
		}
	}

	return 0, false
}
