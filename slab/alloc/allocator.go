package alloc

import (
	"fmt"

	"github.com/joshuapare/slabkit/slab/page"
	"github.com/joshuapare/slabkit/slab/source"
)

// Allocator is the slab allocator front end.
//
// Alloc resolves the size class of a request, pops the class magazine and
// falls back to carving a chunk from the page pool. Free pushes the chunk into
// the magazine of the class its size resolves to.
//
// An Allocator is not safe for concurrent use. Use NewCache to give each
// goroutine its own magazines over the same pages.
type Allocator struct {
	front
}

// Interface is the allocate/free contract shared by Allocator and Cache.
type Interface interface {
	// Alloc returns a chunk able to hold size bytes.
	Alloc(size int) (page.Addr, error)

	// Free gives back a chunk. size must resolve to the same class as the
	// size it was allocated with.
	Free(addr page.Addr, size int) error
}

var (
	_ Interface = (*Allocator)(nil)
	_ Interface = (*Cache)(nil)
)

// PageInfo describes the page that owns an address.
type PageInfo struct {
	ID         page.ID
	Base       page.Addr
	Size       int
	Class      int
	Chunks     int
	FreeChunks int
}

// New creates an allocator that acquires pages from src.
//
// Parameters:
//   - src: backing memory; the allocator takes ownership and closes it in Close
//   - cfg: geometry and policies (use nil for DefaultConfig)
//
// On error the caller keeps ownership of src.
func New(src source.Source, cfg *Config) (*Allocator, error) {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPages > 0 {
		src = source.NewLimit(src, cfg.MaxPages)
	}

	log := resolveLogger(cfg.Logger)
	pool, err := page.NewPool(src, page.Config{
		PageSize:  cfg.PageSize,
		TrackLive: cfg.Checked,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}

	sh := &shared{
		cfg:     *cfg,
		classes: newSizeClasses(cfg.Alignment, cfg.PageSize),
		log:     log,
		pool:    pool,
	}
	a := &Allocator{}
	a.init(sh)
	return a, nil
}

// Alloc returns a chunk of roundup(size, Alignment) bytes.
//
// Fails with ErrZeroSize or ErrTooLarge for sizes outside (0, PageSize], and
// with ErrOutOfMemory when a new page is needed and the source is exhausted.
func (a *Allocator) Alloc(size int) (page.Addr, error) {
	return a.alloc(size)
}

// Free gives back a chunk obtained from Alloc with a size of the same class.
// Freeing 0 is a no-op.
//
// Without Config.Checked the allocator trusts the caller: a foreign address,
// a mismatched size or a double free is not detected and corrupts later
// allocations. In checked mode these fail with ErrForeign, ErrClassMismatch
// and ErrDoubleFree and leave the allocator unchanged.
func (a *Allocator) Free(addr page.Addr, size int) error {
	return a.free(addr, size)
}

// SizeClass returns the class a request of size bytes is served from.
func (a *Allocator) SizeClass(size int) (int, error) {
	return a.sh.classes.classOf(size)
}

// PageSize returns the configured page size.
func (a *Allocator) PageSize() int {
	return a.sh.cfg.PageSize
}

// PageID returns floor(addr / PageSize).
func (a *Allocator) PageID(addr page.Addr) uintptr {
	return uintptr(addr) / uintptr(a.sh.cfg.PageSize)
}

// Config returns the configuration the allocator was built with.
func (a *Allocator) Config() Config {
	return a.sh.cfg
}

// PageOf describes the page owning addr.
func (a *Allocator) PageOf(addr page.Addr) (PageInfo, bool) {
	a.sh.mu.Lock()
	defer a.sh.mu.Unlock()
	if a.sh.closed.Load() {
		return PageInfo{}, false
	}
	pg, ok := a.sh.pool.Lookup(addr)
	if !ok {
		return PageInfo{}, false
	}
	return PageInfo{
		ID:         pg.ID(),
		Base:       pg.Base(),
		Size:       pg.Size(),
		Class:      pg.Class(),
		Chunks:     pg.Chunks(),
		FreeChunks: pg.FreeChunks(),
	}, true
}

// Bytes returns the memory of the chunk at addr, limited to size bytes.
// size may not exceed the chunk's class.
func (a *Allocator) Bytes(addr page.Addr, size int) ([]byte, error) {
	return bytesOf(a.sh, addr, size)
}

// Classes returns the size classes freed at least once, in order of first free.
func (a *Allocator) Classes() []int {
	return a.classesInUse()
}

// Stats returns the allocator's counters.
func (a *Allocator) Stats() Stats {
	return a.snapshot()
}

// Flush returns every chunk cached in the allocator's magazines to its page.
func (a *Allocator) Flush() {
	a.flush()
}

// NewCache returns a new set of magazines over the allocator's pages, for use
// by one goroutine. Caches of one allocator may be used concurrently with each
// other and with the allocator itself.
func (a *Allocator) NewCache() *Cache {
	c := &Cache{}
	c.init(a.sh)
	return c
}

// Close releases every page by closing the source. All addresses handed out
// become invalid. Close must not run concurrently with other calls.
func (a *Allocator) Close() error {
	a.sh.mu.Lock()
	defer a.sh.mu.Unlock()
	if a.sh.closed.Swap(true) {
		return nil
	}
	return a.sh.pool.Close()
}

func bytesOf(sh *shared, addr page.Addr, size int) ([]byte, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.closed.Load() {
		return nil, ErrClosed
	}
	pg, ok := sh.pool.Lookup(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrForeign, uintptr(addr))
	}
	return pg.Bytes(addr, size)
}
