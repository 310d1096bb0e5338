// Package mm defines the physical frame and virtual page types shared by the
// memory management packages together with the hooks through which they
// obtain and release physical frames.
package mm

import "ppc4xx/kernel"

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = ^Frame(0)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains physAddr.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr &^ PageOffsetMask) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page that contains virtAddr.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr &^ PageOffsetMask) >> PageShift)
}

// TruncPage rounds addr down to a page boundary.
func TruncPage(addr uintptr) uintptr {
	return addr &^ PageOffsetMask
}

// RoundPage rounds addr up to a page boundary.
func RoundPage(addr uintptr) uintptr {
	return (addr + PageOffsetMask) &^ PageOffsetMask
}

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// FrameReleaserFn is a function that returns a frame to its allocator.
type FrameReleaserFn func(Frame) *kernel.Error

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// frameReleaser points to the function registered using
	// SetFrameReleaser.
	frameReleaser FrameReleaserFn

	errNoAllocator = &kernel.Error{Module: "mm", Message: "no frame allocator registered"}
)

// SetFrameAllocator registers a frame allocator function that will be used by
// the pmap code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) { frameAllocator = allocFn }

// SetFrameReleaser registers the function used by FreeFrame.
func SetFrameReleaser(freeFn FrameReleaserFn) { frameReleaser = freeFn }

// AllocFrame allocates a new physical frame using the currently active
// physical frame allocator.
func AllocFrame() (Frame, *kernel.Error) {
	if frameAllocator == nil {
		return InvalidFrame, errNoAllocator
	}
	return frameAllocator()
}

// FreeFrame releases a frame previously obtained from AllocFrame. Frames
// handed out by allocators that can not reclaim memory are silently kept.
func FreeFrame(f Frame) *kernel.Error {
	if frameReleaser == nil {
		return nil
	}
	return frameReleaser(f)
}
