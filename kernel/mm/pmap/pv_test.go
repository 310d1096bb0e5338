package pmap

import (
	"testing"

	"ppc4xx/kernel/mm"
)

func TestPVArena(t *testing.T) {
	var arena pvArena
	arena.init(3)

	var got []int32
	for i := 0; i < 3; i++ {
		idx := arena.get()
		if idx == pvNone {
			t.Fatalf("[get %d] unexpected pool exhaustion", i)
		}
		got = append(got, idx)
	}

	if idx := arena.get(); idx != pvNone {
		t.Fatalf("expected exhausted pool to return pvNone; got %d", idx)
	}
	if arena.inUse != 3 {
		t.Fatalf("expected 3 entries in use; got %d", arena.inUse)
	}

	arena.put(got[1])
	if idx := arena.get(); idx != got[1] {
		t.Fatalf("expected released entry %d to be reused; got %d", got[1], idx)
	}

	var empty pvArena
	empty.init(0)
	if idx := empty.get(); idx != pvNone {
		t.Fatalf("expected empty pool to return pvNone; got %d", idx)
	}
}

func TestPVEnterRemove(t *testing.T) {
	defer setupTest(t)()

	const pa = uintptr(0x800000)
	pmA, pmB, pmC := Create(), Create(), Create()

	if err := pvEnter(pmA, 0x1000, pa, 0); err != nil {
		t.Fatal(err)
	}
	if head := pvHead(pa); head.pm != pmA || head.va != 0x1000 || head.next != pvNone {
		t.Fatalf("expected first mapping to occupy the head; got %+v", *head)
	}
	if pvPool.inUse != 0 {
		t.Fatal("expected the head entry not to consume pool entries")
	}

	if err := pvEnter(pmB, 0x2000, pa, mm.MapWired); err != nil {
		t.Fatal(err)
	}
	if err := pvEnter(pmC, 0x3000, pa, 0); err != nil {
		t.Fatal(err)
	}
	if pvPool.inUse != 2 {
		t.Fatalf("expected 2 pool entries in use; got %d", pvPool.inUse)
	}
	if pmB.wired != 1 || pmA.wired != 0 {
		t.Fatalf("expected only the wired mapping to be counted; got A=%d B=%d", pmA.wired, pmB.wired)
	}
	if pv := pvFind(pmB, 0x2000, pa); pv == nil || !pv.wired() {
		t.Fatal("expected the wired bit on the entry of the wired mapping")
	}
	if pv := pvFind(pmA, 0x1000, pa); pv == nil || pv.wired() {
		t.Fatal("expected the head entry to remain unwired")
	}

	// Removing the head promotes the next entry.
	pvRemove(pmA, 0x1000, pa)
	if head := pvHead(pa); head.pm == pmA || head.pm == nil {
		t.Fatalf("expected a remaining mapping to be promoted into the head; got %+v", *head)
	}
	if pvPool.inUse != 1 {
		t.Fatalf("expected promotion to return a pool entry; %d in use", pvPool.inUse)
	}

	// The wired bit is ignored when matching.
	pvRemove(pmB, 0x2000, pa)
	if pmB.wired != 0 {
		t.Fatalf("expected wired count to drop to 0; got %d", pmB.wired)
	}

	// Removing a missing mapping is a no-op.
	pvRemove(pmB, 0x2000, pa)
	pvRemove(pmA, 0x5000, pa)

	list := pvList(pa)
	if len(list) != 1 || len(list[pmC]) != 1 || list[pmC][0] != 0x3000 {
		t.Fatalf("expected only C to map the page; got %v", list)
	}

	pvRemove(pmC, 0x3000, pa)
	if head := pvHead(pa); head.pm != nil {
		t.Fatal("expected head to be empty")
	}
	if pvPool.inUse != 0 {
		t.Fatalf("expected every pool entry to be released; %d in use", pvPool.inUse)
	}
}

func TestPVUnmanagedPage(t *testing.T) {
	defer setupTest(t)()

	pm := Create()
	for _, pa := range []uintptr{0x8000000, 0xef600000} {
		if pvHead(pa) != nil {
			t.Errorf("expected page 0x%x to be unmanaged", pa)
		}
		if err := pvEnter(pm, 0x1000, pa, mm.MapWired); err != nil {
			t.Errorf("expected pvEnter for unmanaged page 0x%x to succeed; got %v", pa, err)
		}
	}

	if pm.wired != 0 {
		t.Fatalf("expected unmanaged pages not to be counted as wired; got %d", pm.wired)
	}
}

func TestPVPoolExhaustion(t *testing.T) {
	defer func(origSize int) {
		pvPoolSize = origSize
	}(pvPoolSize)
	pvPoolSize = 2

	defer setupTest(t)()

	const pa = uintptr(0x800000)
	pms := []*Pmap{Create(), Create(), Create(), Create()}
	for i := 0; i < 3; i++ {
		if err := pvEnter(pms[i], 0x1000, pa, mm.MapCanFail); err != nil {
			t.Fatalf("[enter %d] unexpected error %v", i, err)
		}
	}

	if err := pvEnter(pms[3], 0x1000, pa, mm.MapCanFail|mm.MapWired); err != errPVPoolExhausted {
		t.Fatalf("expected errPVPoolExhausted; got %v", err)
	}
	if pms[3].wired != 0 {
		t.Fatal("expected failed pvEnter not to change the wired count")
	}
	if got := len(pvList(pa)); got != 3 {
		t.Fatalf("expected list to keep 3 mappings; got %d", got)
	}

	expectHalt(t, func() {
		_ = pvEnter(pms[3], 0x1000, pa, 0)
	})
}
