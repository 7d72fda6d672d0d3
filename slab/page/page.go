package page

import (
	"fmt"

	"github.com/joshuapare/slabkit/slab/source"
)

// Addr is the address of a chunk (or of a page's first byte).
type Addr uintptr

// ID identifies a page within its pool. IDs are dense and assigned in
// acquisition order starting at 0.
type ID int32

// Page is one fixed-size region dedicated to a single size class.
//
// Chunks are laid out back to back from the page base; any tail shorter than
// one chunk is never handed out. The free sequence holds chunk indices that
// have not been carved yet (or were released back to the page).
type Page struct {
	id     ID
	mem    []byte
	base   Addr
	class  int
	chunks int

	// free is a stack of chunk indices. Fresh pages are filled so that chunks
	// are carved in ascending address order.
	free []uint32

	// live has one bit per chunk, set while the chunk is held by a caller.
	// nil unless the pool tracks live chunks.
	live []uint64

	// listed is true while the page is on its pool's partial list.
	listed bool
}

func newPage(id ID, mem []byte, class int, track bool) *Page {
	chunks := len(mem) / class
	pg := &Page{
		id:     id,
		mem:    mem,
		base:   Addr(source.Base(mem)),
		class:  class,
		chunks: chunks,
		free:   make([]uint32, chunks),
	}
	for i := range chunks {
		pg.free[i] = uint32(chunks - 1 - i)
	}
	if track {
		pg.live = make([]uint64, (chunks+63)/64)
	}
	return pg
}

// ID returns the page's identifier within its pool.
func (pg *Page) ID() ID { return pg.id }

// Base returns the address of the first byte of the page.
func (pg *Page) Base() Addr { return pg.base }

// End returns the address one past the last byte of the page.
func (pg *Page) End() Addr { return pg.base + Addr(len(pg.mem)) }

// Size returns the page size in bytes.
func (pg *Page) Size() int { return len(pg.mem) }

// Class returns the chunk size this page is dedicated to.
func (pg *Page) Class() int { return pg.class }

// Chunks returns the number of chunks the page was partitioned into.
func (pg *Page) Chunks() int { return pg.chunks }

// FreeChunks returns the number of chunks still in the page's free sequence.
func (pg *Page) FreeChunks() int { return len(pg.free) }

// Contains reports whether addr lies inside the page.
func (pg *Page) Contains(addr Addr) bool {
	return addr >= pg.base && addr < pg.End()
}

// ChunkIndex returns the index of the chunk starting at addr.
func (pg *Page) ChunkIndex(addr Addr) (int, error) {
	if !pg.Contains(addr) {
		return 0, fmt.Errorf("%w: %#x outside page %d", ErrForeign, uintptr(addr), pg.id)
	}
	off := int(addr - pg.base)
	if off%pg.class != 0 || off/pg.class >= pg.chunks {
		return 0, fmt.Errorf("%w: %#x in page %d (class %d)", ErrNotChunk, uintptr(addr), pg.id, pg.class)
	}
	return off / pg.class, nil
}

// ChunkAddr returns the address of chunk i.
func (pg *Page) ChunkAddr(i int) Addr {
	return pg.base + Addr(i*pg.class)
}

// Bytes returns the memory of the chunk at addr, limited to n bytes.
func (pg *Page) Bytes(addr Addr, n int) ([]byte, error) {
	i, err := pg.ChunkIndex(addr)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > pg.class {
		return nil, fmt.Errorf("%w: %d bytes from a %d-byte chunk", ErrNotChunk, n, pg.class)
	}
	off := i * pg.class
	return pg.mem[off : off+n : off+n], nil
}

// Tracked reports whether the page keeps a live-chunk bitmap.
func (pg *Page) Tracked() bool { return pg.live != nil }

// IsLive reports whether the chunk at addr is currently held by a caller.
// Always false for untracked pages.
func (pg *Page) IsLive(addr Addr) bool {
	if pg.live == nil {
		return false
	}
	i, err := pg.ChunkIndex(addr)
	if err != nil {
		return false
	}
	return pg.live[i/64]&(1<<(i%64)) != 0
}

// Mark records that the chunk at addr was handed to a caller.
// Returns ErrLive if it already was. No-op for untracked pages.
func (pg *Page) Mark(addr Addr) error {
	if pg.live == nil {
		return nil
	}
	i, err := pg.ChunkIndex(addr)
	if err != nil {
		return err
	}
	bit := uint64(1) << (i % 64)
	if pg.live[i/64]&bit != 0 {
		return fmt.Errorf("%w: %#x", ErrLive, uintptr(addr))
	}
	pg.live[i/64] |= bit
	return nil
}

// Unmark records that the caller gave the chunk at addr back.
// Returns ErrNotLive if it was not held. No-op for untracked pages.
func (pg *Page) Unmark(addr Addr) error {
	if pg.live == nil {
		return nil
	}
	i, err := pg.ChunkIndex(addr)
	if err != nil {
		return err
	}
	bit := uint64(1) << (i % 64)
	if pg.live[i/64]&bit == 0 {
		return fmt.Errorf("%w: %#x", ErrNotLive, uintptr(addr))
	}
	pg.live[i/64] &^= bit
	return nil
}

// pop removes the next chunk from the free sequence. The caller checks FreeChunks first.
func (pg *Page) pop() Addr {
	n := len(pg.free) - 1
	i := int(pg.free[n])
	pg.free = pg.free[:n]
	if pg.live != nil {
		pg.live[i/64] |= 1 << (i % 64)
	}
	return pg.ChunkAddr(i)
}

// push returns chunk i to the free sequence.
func (pg *Page) push(i int) {
	pg.free = append(pg.free, uint32(i))
}
