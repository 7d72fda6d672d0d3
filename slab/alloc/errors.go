package alloc

import (
	"errors"

	"github.com/joshuapare/slabkit/slab/page"
)

var (
	// ErrOutOfMemory indicates the backing source could not supply a new page.
	ErrOutOfMemory = page.ErrOutOfMemory

	// ErrZeroSize indicates a request for zero (or negative) bytes.
	ErrZeroSize = errors.New("alloc: size must be positive")

	// ErrTooLarge indicates a request whose size class exceeds the page size.
	ErrTooLarge = errors.New("alloc: size exceeds page size")

	// ErrBadConfig indicates an invalid Config.
	ErrBadConfig = errors.New("alloc: bad config")

	// ErrClosed indicates use of an allocator after Close.
	ErrClosed = errors.New("alloc: allocator closed")

	// ErrForeign indicates a free of an address the allocator never handed out.
	// Only reported in checked mode.
	ErrForeign = errors.New("alloc: address not owned by allocator")

	// ErrClassMismatch indicates a free whose size resolves to a different class
	// than the chunk was allocated with. Only reported in checked mode.
	ErrClassMismatch = errors.New("alloc: free size does not match allocation")

	// ErrDoubleFree indicates a free of a chunk that is not currently allocated.
	// Only reported in checked mode.
	ErrDoubleFree = errors.New("alloc: double free")
)
