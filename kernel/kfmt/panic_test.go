package kfmt

import (
	"bytes"
	"errors"
	"ppc4xx/kernel"
	"ppc4xx/kernel/cpu"
	"testing"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		outputSink = nil
	}()

	var cpuHaltCalled bool
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}

	specs := []struct {
		input interface{}
		exp   string
	}{
		{
			&kernel.Error{Module: "pmap", Message: "freeing kernel context"},
			"\n-----------------------------------\n[pmap] unrecoverable error: freeing kernel context\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			errors.New("go error"),
			"\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"string error",
			"\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			nil,
			"\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		cpuHaltCalled = false

		Panic(spec.input)

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected to get:\n%q\ngot:\n%q", specIndex, spec.exp, got)
		}

		if !cpuHaltCalled {
			t.Errorf("[spec %d] expected cpu.Halt() to be called by Panic", specIndex)
		}
	}
}
