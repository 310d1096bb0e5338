package cpu

const (
	ramPageShift = 12
	ramPageSize  = uintptr(1 << ramPageShift)
)

// Memory is a sparse model of physical RAM. Backing storage for a page is
// only created when the page is first written; reads from untouched pages
// return zeroes.
type Memory struct {
	pages map[uintptr]*[ramPageSize]byte
}

var ram Memory

// RAM returns the physical memory of the machine.
func RAM() *Memory { return &ram }

func (m *Memory) page(pa uintptr, create bool) *[ramPageSize]byte {
	frame := pa >> ramPageShift
	p := m.pages[frame]
	if p == nil && create {
		if m.pages == nil {
			m.pages = make(map[uintptr]*[ramPageSize]byte)
		}
		p = new([ramPageSize]byte)
		m.pages[frame] = p
	}
	return p
}

// Read copies len(p) bytes starting at physical address pa into p.
func (m *Memory) Read(pa uintptr, p []byte) {
	for len(p) > 0 {
		off := pa & (ramPageSize - 1)
		n := int(ramPageSize - off)
		if n > len(p) {
			n = len(p)
		}

		if page := m.page(pa, false); page != nil {
			copy(p[:n], page[off:])
		} else {
			for i := 0; i < n; i++ {
				p[i] = 0
			}
		}

		p = p[n:]
		pa += uintptr(n)
	}
}

// Write copies p to physical memory starting at pa.
func (m *Memory) Write(pa uintptr, p []byte) {
	for len(p) > 0 {
		off := pa & (ramPageSize - 1)
		n := copy(m.page(pa, true)[off:], p)
		p = p[n:]
		pa += uintptr(n)
	}
}

// Zero clears size bytes starting at pa. Whole pages are released instead of
// being overwritten.
func (m *Memory) Zero(pa, size uintptr) {
	var zero [ramPageSize]byte
	for size > 0 {
		off := pa & (ramPageSize - 1)
		n := ramPageSize - off
		if n > size {
			n = size
		}

		if off == 0 && n == ramPageSize {
			delete(m.pages, pa>>ramPageShift)
		} else if page := m.page(pa, false); page != nil {
			copy(page[off:off+n], zero[:n])
		}

		size -= n
		pa += n
	}
}

// Copy copies size bytes from physical address src to dst.
func (m *Memory) Copy(dst, src, size uintptr) {
	var buf [ramPageSize]byte
	for size > 0 {
		n := ramPageSize
		if n > size {
			n = size
		}
		m.Read(src, buf[:n])
		m.Write(dst, buf[:n])
		size, src, dst = size-n, src+n, dst+n
	}
}

// Reset discards the contents of every page.
func (m *Memory) Reset() {
	m.pages = nil
}
