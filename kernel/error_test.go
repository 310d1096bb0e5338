package kernel

import "testing"

func TestKernelError(t *testing.T) {
	err := &Error{
		Module:  "pmap",
		Message: "out of pv entries",
	}

	if exp, got := "pmap: out of pv entries", err.Error(); got != exp {
		t.Fatalf("expected to err.Error() to return %q; got %q", exp, got)
	}
}
