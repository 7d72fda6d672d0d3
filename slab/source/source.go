// Package source provides the backing memory the slab allocator carves pages from.
//
// # Overview
//
// A Source hands out fresh regions of exactly the requested size, aligned to that
// size. The allocator asks for one page at a time and never gives a page back
// individually; all memory is returned at once by Close.
//
// # Implementations
//
//   - Heap: regions carved from Go-heap segments (portable, default)
//   - Mmap: anonymous private mappings (unix), falls back to Heap elsewhere
//   - File: shared mappings of a backing file, with Sync for durability (unix)
//   - Limit: wraps another Source and caps the number of regions it will supply
//
// Every implementation acquires memory in segments (DefaultSegmentSize by default)
// and slices aligned regions out of them, so a run of small pages costs one
// allocation or one mmap call per segment rather than per page.
//
// # Thread Safety
//
// Sources are not thread-safe. The page pool serializes all calls.
package source

import (
	"errors"
	"unsafe"
)

// DefaultSegmentSize is the number of bytes reserved per segment when the caller
// passes 0.
const DefaultSegmentSize = 256 << 10

var (
	// ErrExhausted indicates the source cannot supply another region.
	ErrExhausted = errors.New("source: memory exhausted")

	// ErrBadSize indicates a region size that is not a positive power of two.
	ErrBadSize = errors.New("source: region size must be a positive power of two")

	// ErrClosed indicates use of a source after Close.
	ErrClosed = errors.New("source: closed")
)

// Source supplies page-aligned memory regions.
type Source interface {
	// Acquire returns a region of exactly size bytes whose first byte is aligned
	// to size. size must be a power of two.
	Acquire(size int) ([]byte, error)

	// Close releases every region handed out so far. Regions must not be used
	// after Close returns.
	Close() error
}

// Base returns the address of the first byte of b, or 0 for an empty slice.
func Base(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// validSize reports whether size is a positive power of two.
func validSize(size int) bool {
	return size > 0 && size&(size-1) == 0
}

// segmentBytes returns the usable segment length for regions of the given size:
// the configured segment size rounded up to a whole number of regions.
func segmentBytes(segmentSize, size int) int {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	n := (segmentSize + size - 1) / size * size
	return max(n, size)
}

// carver slices aligned regions off the front of the current segment.
type carver struct {
	cur []byte
}

// reset makes seg the segment regions are carved from.
func (c *carver) reset(seg []byte) {
	c.cur = seg
}

// take returns the next size-aligned region of size bytes, or nil when the
// current segment cannot hold one.
func (c *carver) take(size int) []byte {
	if len(c.cur) == 0 {
		return nil
	}
	skip := alignSkip(Base(c.cur), size)
	if skip+size > len(c.cur) {
		return nil
	}
	region := c.cur[skip : skip+size : skip+size]
	c.cur = c.cur[skip+size:]
	return region
}

// alignSkip returns how many bytes to skip from addr to reach the next multiple
// of align (a power of two).
func alignSkip(addr uintptr, align int) int {
	a := uintptr(align)
	return int((a - addr&(a-1)) & (a - 1))
}
