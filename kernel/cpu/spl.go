package cpu

// IPL describes a processor interrupt priority level. Code that must not be
// re-entered from interrupt or trap context raises the level for the
// duration of the critical section and restores the previous one on exit:
//
//	s := cpu.Splvm()
//	defer cpu.Splx(s)
type IPL uint8

const (
	// IPLNone allows every interrupt.
	IPLNone IPL = iota

	// IPLVM blocks device and timer interrupts that may touch the VM
	// system.
	IPLVM

	// IPLHigh blocks everything.
	IPLHigh
)

var curIPL IPL

func splraise(level IPL) IPL {
	old := curIPL
	if level > curIPL {
		curIPL = level
	}
	return old
}

// Splvm raises the priority level to IPLVM and returns the previous level.
func Splvm() IPL { return splraise(IPLVM) }

// Splhigh raises the priority level to IPLHigh and returns the previous level.
func Splhigh() IPL { return splraise(IPLHigh) }

// Splx restores a level previously returned by Splvm or Splhigh.
func Splx(level IPL) { curIPL = level }

// CurrentIPL returns the active priority level.
func CurrentIPL() IPL { return curIPL }
