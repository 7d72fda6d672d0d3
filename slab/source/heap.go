package source

import "fmt"

// Heap carves regions out of segments allocated on the Go heap.
//
// The Go collector does not move heap objects, so region addresses stay valid
// for as long as the segment is referenced. Heap keeps every segment reachable
// until Close.
type Heap struct {
	segmentSize int
	carve       carver
	segments    [][]byte
	closed      bool
}

// NewHeap creates a heap-backed source. segmentSize of 0 selects DefaultSegmentSize.
func NewHeap(segmentSize int) *Heap {
	return &Heap{segmentSize: segmentSize}
}

// Acquire implements Source.
func (h *Heap) Acquire(size int) ([]byte, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if !validSize(size) {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}

	if region := h.carve.take(size); region != nil {
		return region, nil
	}

	// Over-allocate by one region so an aligned run of n bytes always fits.
	n := segmentBytes(h.segmentSize, size)
	raw := make([]byte, n+size)
	skip := alignSkip(Base(raw), size)
	seg := raw[skip : skip+n]

	h.segments = append(h.segments, raw)
	h.carve.reset(seg)
	return h.carve.take(size), nil
}

// Segments returns the number of segments allocated so far.
func (h *Heap) Segments() int {
	return len(h.segments)
}

// Close drops the references to all segments.
func (h *Heap) Close() error {
	h.closed = true
	h.segments = nil
	h.carve.reset(nil)
	return nil
}
