package page

import "errors"

var (
	// ErrOutOfMemory indicates the backing source could not supply a new page.
	ErrOutOfMemory = errors.New("page: out of memory")

	// ErrBadPageSize indicates a page size that is not a power of two >= MinPageSize.
	ErrBadPageSize = errors.New("page: bad page size")

	// ErrBadClass indicates a size class that is not positive or exceeds the page size.
	ErrBadClass = errors.New("page: bad size class")

	// ErrMisaligned indicates the source returned a region not aligned to the page size.
	ErrMisaligned = errors.New("page: source returned a misaligned region")

	// ErrForeign indicates an address that does not belong to any page of the pool.
	ErrForeign = errors.New("page: address not owned by pool")

	// ErrNotChunk indicates an address inside a page that is not a chunk start.
	ErrNotChunk = errors.New("page: address is not a chunk boundary")

	// ErrLive indicates a chunk that is already held by a caller.
	ErrLive = errors.New("page: chunk is live")

	// ErrNotLive indicates a chunk that is not held by any caller.
	ErrNotLive = errors.New("page: chunk is not live")

	// ErrClosed indicates use of a pool after Close.
	ErrClosed = errors.New("page: pool closed")
)
