package pmap

import (
	"ppc4xx/kernel"
	"ppc4xx/kernel/kfmt"
	"ppc4xx/kernel/mm"
	"ppc4xx/kernel/mm/pmm"
)

// pvWired is stored in the low bit of a pvEntry's va. Mapped addresses are
// page aligned so the bit is otherwise unused.
const pvWired = uintptr(1)

// pvNone terminates a pv chain.
const pvNone = int32(-1)

// pvEntry records that pm maps a physical page at va. The first entry for
// each managed page is embedded in pvHeads; further entries come from
// pvPool and are linked by index.
type pvEntry struct {
	pm   *Pmap
	va   uintptr
	next int32
}

func (pv *pvEntry) wired() bool { return pv.va&pvWired != 0 }

// matches compares the entry with (pm, va) ignoring the wired bit.
func (pv *pvEntry) matches(pm *Pmap, va uintptr) bool {
	return pv.pm == pm && pv.va&^mm.PageOffsetMask == va
}

// pvArena is a fixed-size pool of overflow pv entries with an index based
// free list.
type pvArena struct {
	entries []pvEntry
	free    int32
	inUse   int
}

func (a *pvArena) init(size int) {
	a.entries = make([]pvEntry, size)
	for i := range a.entries {
		a.entries[i].next = int32(i) + 1
	}
	if size > 0 {
		a.entries[size-1].next = pvNone
		a.free = 0
	} else {
		a.free = pvNone
	}
	a.inUse = 0
}

// get removes an entry from the free list. It returns pvNone if the pool is
// exhausted.
func (a *pvArena) get() int32 {
	idx := a.free
	if idx == pvNone {
		return pvNone
	}

	a.free = a.entries[idx].next
	a.entries[idx] = pvEntry{next: pvNone}
	a.inUse++
	return idx
}

// put returns an entry to the free list.
func (a *pvArena) put(idx int32) {
	a.entries[idx] = pvEntry{next: a.free}
	a.free = idx
	a.inUse--
}

var (
	// pvPoolSize is the number of overflow entries shared by all managed
	// pages.
	pvPoolSize = 4096

	// pvHeads holds the embedded first pv entry of every managed page,
	// indexed by the page index reported by pmm.
	pvHeads []pvEntry

	pvPool pvArena

	errPVPoolExhausted = &kernel.Error{Module: "pmap", Message: "pv entry pool exhausted"}
	errPVListCorrupted = &kernel.Error{Module: "pmap", Message: "pv entry has no page table mapping"}
)

// pvHead returns the pv list head for the page at pa or nil if the page is
// not managed.
func pvHead(pa uintptr) *pvEntry {
	if !initialized {
		return nil
	}

	idx, ok := pmm.PageIndex(mm.FrameFromAddress(pa))
	if !ok || idx >= len(pvHeads) {
		return nil
	}
	return &pvHeads[idx]
}

// pvEnter records that pm maps pa at va. When the head is taken a pool
// entry is spliced in after it; pool exhaustion is reported when flags
// contain MapCanFail and is fatal otherwise. A wired mapping bumps the wired
// counter of pm.
func pvEnter(pm *Pmap, va, pa uintptr, flags mm.MapFlag) *kernel.Error {
	head := pvHead(pa)
	if head == nil {
		return nil
	}

	pv := head
	if head.pm == nil {
		head.va, head.pm, head.next = va, pm, pvNone
	} else {
		idx := pvPool.get()
		if idx == pvNone {
			if flags&mm.MapCanFail == 0 {
				kfmt.Panic(errPVPoolExhausted)
			}
			return errPVPoolExhausted
		}

		pv = &pvPool.entries[idx]
		pv.va, pv.pm, pv.next = va, pm, head.next
		head.next = idx
	}

	if flags&mm.MapWired != 0 {
		pv.va |= pvWired
		pm.wired++
	}

	return nil
}

// pvRemove drops the entry for (pm, va) from the list of pa. Removing the
// head promotes the second entry into the head slot.
func pvRemove(pm *Pmap, va, pa uintptr) {
	head := pvHead(pa)
	if head == nil || head.pm == nil {
		return
	}

	if head.matches(pm, va) {
		if head.wired() {
			pm.wired--
		}

		if next := head.next; next != pvNone {
			*head = pvPool.entries[next]
			pvPool.put(next)
		} else {
			*head = pvEntry{next: pvNone}
		}
		return
	}

	for prev := head; prev.next != pvNone; prev = &pvPool.entries[prev.next] {
		idx := prev.next
		pv := &pvPool.entries[idx]
		if !pv.matches(pm, va) {
			continue
		}

		if pv.wired() {
			pm.wired--
		}
		prev.next = pv.next
		pvPool.put(idx)
		return
	}
}

// pvFind returns the entry for (pm, va) on the list of pa or nil.
func pvFind(pm *Pmap, va, pa uintptr) *pvEntry {
	head := pvHead(pa)
	if head == nil || head.pm == nil {
		return nil
	}

	for pv := head; ; pv = &pvPool.entries[pv.next] {
		if pv.matches(pm, va) {
			return pv
		}
		if pv.next == pvNone {
			return nil
		}
	}
}

// pvForEach invokes fn for every mapping of pa, pool entries first and the
// head last. fn must not modify the list.
func pvForEach(pa uintptr, fn func(pm *Pmap, va uintptr)) {
	head := pvHead(pa)
	if head == nil {
		return
	}

	for idx := head.next; idx != pvNone; idx = pvPool.entries[idx].next {
		pv := &pvPool.entries[idx]
		fn(pv.pm, pv.va&^mm.PageOffsetMask)
	}
	if head.pm != nil {
		fn(head.pm, head.va&^mm.PageOffsetMask)
	}
}

// pvDrain invokes remove for every mapping of pa, pool entries first and the
// head last. remove must drop the entry it is passed from the list.
func pvDrain(pa uintptr, remove func(pm *Pmap, va uintptr)) {
	head := pvHead(pa)
	if head == nil {
		return
	}

	for head.next != pvNone {
		idx := head.next
		pv := pvPool.entries[idx]
		remove(pv.pm, pv.va&^mm.PageOffsetMask)
		if head.next == idx {
			kfmt.Panic(errPVListCorrupted)
		}
	}

	if head.pm != nil {
		pm, va := head.pm, head.va&^mm.PageOffsetMask
		remove(pm, va)
		if head.pm == pm && head.va&^mm.PageOffsetMask == va {
			kfmt.Panic(errPVListCorrupted)
		}
	}
}
