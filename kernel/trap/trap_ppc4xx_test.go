package trap

import (
	"bytes"
	"ppc4xx/kernel/cpu"
	"ppc4xx/kernel/kfmt"
	"strings"
	"testing"
)

func TestDispatch(t *testing.T) {
	defer HandleTrap(DataTLBMiss, nil)

	var got *Frame
	HandleTrap(DataTLBMiss, func(f *Frame) { got = f })

	frame := &Frame{DEAR: 0x1000, PID: 3}
	Dispatch(DataTLBMiss, frame)

	if got != frame {
		t.Fatal("expected handler to receive the dispatched frame")
	}
}

func TestDispatchUnhandled(t *testing.T) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer func() {
		kfmt.SetOutputSink(nil)
		cpu.Reset()
	}()

	HandleTrap(InstStorage, func(*Frame) {})
	HandleTrap(InstStorage, nil)

	defer func() {
		if recover() == nil {
			t.Fatal("expected unhandled exception to halt the processor")
		}

		out := buf.String()
		for _, exp := range []string{"Unhandled exception 0x0400", "DEAR = 0000dead", "PID  = 9", "[trap] unrecoverable error: unhandled exception"} {
			if !strings.Contains(out, exp) {
				t.Errorf("expected output to contain %q; got:\n%s", exp, out)
			}
		}
	}()

	Dispatch(InstStorage, &Frame{DEAR: 0xdead, PID: 9})
}
