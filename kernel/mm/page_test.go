package mm

import (
	"ppc4xx/kernel"
	"testing"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestAddressConversions(t *testing.T) {
	specs := []struct {
		addr     uintptr
		expIndex uintptr
		expTrunc uintptr
		expRound uintptr
	}{
		{0, 0, 0, 0},
		{4095, 0, 0, 4096},
		{4096, 1, 4096, 4096},
		{0xc0001234, 0xc0001, 0xc0001000, 0xc0002000},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.addr); got != Frame(spec.expIndex) {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expIndex, got)
		}
		if got := PageFromAddress(spec.addr); got != Page(spec.expIndex) {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expIndex, got)
		}
		if got := Page(spec.expIndex).Address(); got != spec.expTrunc {
			t.Errorf("[spec %d] expected page address to be %x; got %x", specIndex, spec.expTrunc, got)
		}
		if got := TruncPage(spec.addr); got != spec.expTrunc {
			t.Errorf("[spec %d] expected TruncPage to return %x; got %x", specIndex, spec.expTrunc, got)
		}
		if got := RoundPage(spec.addr); got != spec.expRound {
			t.Errorf("[spec %d] expected RoundPage to return %x; got %x", specIndex, spec.expRound, got)
		}
	}
}

func TestFrameAllocatorHooks(t *testing.T) {
	defer func() {
		SetFrameAllocator(nil)
		SetFrameReleaser(nil)
	}()

	if _, err := AllocFrame(); err != errNoAllocator {
		t.Fatalf("expected errNoAllocator; got %v", err)
	}

	if err := FreeFrame(Frame(1)); err != nil {
		t.Fatalf("expected FreeFrame without a releaser to succeed; got %v", err)
	}

	SetFrameAllocator(func() (Frame, *kernel.Error) { return Frame(42), nil })
	var released Frame
	SetFrameReleaser(func(f Frame) *kernel.Error { released = f; return nil })

	f, err := AllocFrame()
	if err != nil || f != Frame(42) {
		t.Fatalf("expected to allocate frame 42; got %d, %v", f, err)
	}

	if err = FreeFrame(f); err != nil || released != f {
		t.Fatalf("expected frame %d to be released; got %d, %v", f, released, err)
	}
}

func TestMapFlagAccess(t *testing.T) {
	flags := MapWired | MapCanFail | MapFlag(ProtRead|ProtWrite)
	if got := flags.Access(); got != ProtRead|ProtWrite {
		t.Fatalf("expected access ProtRead|ProtWrite; got %d", got)
	}

	if MapWired&MapAccessMask != 0 || MapCanFail&MapAccessMask != 0 {
		t.Fatal("expected option flags not to overlap the access mask")
	}
}
