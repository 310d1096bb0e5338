package cpu

import "testing"

func TestSpl(t *testing.T) {
	defer Reset()

	if got := CurrentIPL(); got != IPLNone {
		t.Fatalf("expected initial IPL to be IPLNone; got %d", got)
	}

	s := Splvm()
	if s != IPLNone || CurrentIPL() != IPLVM {
		t.Fatalf("expected Splvm to raise IPL to IPLVM")
	}

	s2 := Splhigh()
	if s2 != IPLVM || CurrentIPL() != IPLHigh {
		t.Fatalf("expected Splhigh to raise IPL to IPLHigh")
	}

	// raising to a lower level keeps the current one
	s3 := Splvm()
	if s3 != IPLHigh || CurrentIPL() != IPLHigh {
		t.Fatalf("expected Splvm not to lower the IPL")
	}

	Splx(s3)
	Splx(s2)
	Splx(s)
	if got := CurrentIPL(); got != IPLNone {
		t.Fatalf("expected IPL to be restored to IPLNone; got %d", got)
	}
}

func TestZoneAccess(t *testing.T) {
	defer Reset()

	WriteZPR(ZoneFull<<30 | ZoneUserNone<<28 | ZonePage<<26)
	specs := []struct {
		zone, exp uint32
	}{
		{0, ZoneFull},
		{1, ZoneUserNone},
		{2, ZonePage},
		{3, ZoneUserNone},
	}

	for _, spec := range specs {
		if got := ZoneAccess(spec.zone); got != spec.exp {
			t.Errorf("expected zone %d access to be %d; got %d", spec.zone, spec.exp, got)
		}
	}
}

func TestHalt(t *testing.T) {
	defer Reset()

	defer func() {
		if err := recover(); err != errHalted {
			t.Fatalf("expected Halt to panic with errHalted; got %v", err)
		}
		if !Halted() {
			t.Fatal("expected Halted to return true")
		}
	}()

	Halt()
}

func TestCacheLog(t *testing.T) {
	defer Reset()

	WritePID(7)
	DataCacheBlockStore(0x1234)
	InstCacheBlockInvalidate(0x1234)
	Sync()

	exp := []CacheOp{
		{Kind: OpDataStore, PID: 7, VA: 0x1220},
		{Kind: OpInstInvalidate, PID: 7, VA: 0x1220},
		{Kind: OpSync, PID: 7},
	}

	got := CacheLog()
	if len(got) != len(exp) {
		t.Fatalf("expected %d cache ops; got %d", len(exp), len(got))
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Errorf("[op %d] expected %+v; got %+v", i, exp[i], got[i])
		}
	}
}
