package page

import (
	"fmt"
	"io"
	"log/slog"
	"math/bits"

	"github.com/joshuapare/slabkit/slab/source"
)

// MinPageSize is the smallest page size a pool accepts.
const MinPageSize = 64

// Config configures a Pool.
type Config struct {
	// PageSize is the fixed size of every page (power of two, >= MinPageSize).
	PageSize int

	// TrackLive gives every page a live-chunk bitmap so Mark/Unmark and
	// Release can detect misuse.
	TrackLive bool

	// Logger receives slow-path events. nil discards them.
	Logger *slog.Logger
}

// Stats holds pool counters.
type Stats struct {
	Pages    int   // pages acquired
	Bytes    int64 // bytes acquired from the source
	Classes  int   // distinct size classes with at least one page
	Carved   int   // chunks carved from pages
	Released int   // chunks returned to pages
	Partial  int   // pages with free chunks
}

// Pool owns every page acquired from a source and carves chunks out of them.
//
// Pages are kept in an arena indexed by ID. Because pages are aligned to the
// page size, the owning page of any address is found with one shift and one
// map lookup.
type Pool struct {
	src      source.Source
	pageSize int
	shift    uint
	track    bool
	log      *slog.Logger

	pages []*Page

	// index maps Addr>>shift to the page covering that address range.
	index map[uintptr]ID

	// partial holds, per size class, the pages that still have free chunks.
	// The last entry is carved from first.
	partial map[int][]*Page

	// pagesByClass counts pages dedicated to each class.
	pagesByClass map[int]int

	stats  Stats
	closed bool
}

// NewPool creates a pool that acquires pages from src. The pool takes
// ownership of src and closes it in Close.
func NewPool(src source.Source, cfg Config) (*Pool, error) {
	if cfg.PageSize < MinPageSize || bits.OnesCount(uint(cfg.PageSize)) != 1 {
		return nil, fmt.Errorf("%w: %d", ErrBadPageSize, cfg.PageSize)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pool{
		src:          src,
		pageSize:     cfg.PageSize,
		shift:        uint(bits.TrailingZeros(uint(cfg.PageSize))),
		track:        cfg.TrackLive,
		log:          log,
		index:        make(map[uintptr]ID),
		partial:      make(map[int][]*Page),
		pagesByClass: make(map[int]int),
	}, nil
}

// PageSize returns the size of every page in the pool.
func (p *Pool) PageSize() int {
	return p.pageSize
}

// PageID returns floor(addr / PageSize), the page number addr falls in.
// It is pure arithmetic and does not consult the pool.
func (p *Pool) PageID(addr Addr) uintptr {
	return uintptr(addr) >> p.shift
}

// Carve hands out one chunk of the given size class.
//
// It takes a chunk from the most recently used page of the class that still
// has free chunks, and acquires a new page when there is none. The only
// failure for a valid class is an exhausted source (ErrOutOfMemory).
func (p *Pool) Carve(class int) (Addr, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if class <= 0 || class > p.pageSize {
		return 0, fmt.Errorf("%w: %d (page size %d)", ErrBadClass, class, p.pageSize)
	}

	list := p.partial[class]
	var pg *Page
	if n := len(list); n > 0 {
		pg = list[n-1]
	} else {
		var err error
		if pg, err = p.grow(class); err != nil {
			return 0, err
		}
		list = append(list, pg)
		pg.listed = true
	}

	addr := pg.pop()
	p.stats.Carved++

	if pg.FreeChunks() == 0 {
		pg.listed = false
		list = list[:len(list)-1]
	}
	p.partial[class] = list
	return addr, nil
}

// grow acquires a new page from the source and dedicates it to class.
func (p *Pool) grow(class int) (*Page, error) {
	mem, err := p.src.Acquire(p.pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: page for class %d: %w", ErrOutOfMemory, class, err)
	}

	base := source.Base(mem)
	if len(mem) != p.pageSize || base&uintptr(p.pageSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d bytes at %#x for page size %d", ErrMisaligned, len(mem), base, p.pageSize)
	}
	key := base >> p.shift
	if id, dup := p.index[key]; dup {
		return nil, fmt.Errorf("%w: region %#x overlaps page %d", ErrMisaligned, base, id)
	}

	id := ID(len(p.pages))
	pg := newPage(id, mem, class, p.track)
	p.pages = append(p.pages, pg)
	p.index[key] = id

	if p.pagesByClass[class] == 0 {
		p.stats.Classes++
	}
	p.pagesByClass[class]++
	p.stats.Pages++
	p.stats.Bytes += int64(p.pageSize)

	p.log.Debug("page acquired",
		"id", id,
		"class", class,
		"chunks", pg.chunks,
		"base", fmt.Sprintf("%#x", base),
		"pages", len(p.pages),
	)
	return pg, nil
}

// Release returns the chunk at addr to its page's free sequence.
//
// With live tracking enabled, releasing a chunk that is still held by a
// caller fails with ErrLive.
func (p *Pool) Release(addr Addr) error {
	if p.closed {
		return ErrClosed
	}
	pg, ok := p.Lookup(addr)
	if !ok {
		return fmt.Errorf("%w: %#x", ErrForeign, uintptr(addr))
	}
	i, err := pg.ChunkIndex(addr)
	if err != nil {
		return err
	}
	if pg.IsLive(addr) {
		return fmt.Errorf("%w: release of %#x", ErrLive, uintptr(addr))
	}

	pg.push(i)
	p.stats.Released++

	if !pg.listed {
		pg.listed = true
		p.partial[pg.class] = append(p.partial[pg.class], pg)
	}
	return nil
}

// Lookup returns the page containing addr.
func (p *Pool) Lookup(addr Addr) (*Page, bool) {
	id, ok := p.index[p.PageID(addr)]
	if !ok {
		return nil, false
	}
	return p.pages[id], true
}

// Page returns the page with the given ID, or nil.
func (p *Pool) Page(id ID) *Page {
	if id < 0 || int(id) >= len(p.pages) {
		return nil
	}
	return p.pages[id]
}

// Pages returns every page in acquisition order. The slice must not be modified.
func (p *Pool) Pages() []*Page {
	return p.pages
}

// Len returns the number of pages.
func (p *Pool) Len() int {
	return len(p.pages)
}

// PagesOf returns the number of pages dedicated to class.
func (p *Pool) PagesOf(class int) int {
	return p.pagesByClass[class]
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	s := p.stats
	for _, list := range p.partial {
		s.Partial += len(list)
	}
	return s
}

// Close releases all pages by closing the source. Addresses handed out by the
// pool must not be used afterwards.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.pages = nil
	p.index = nil
	p.partial = nil
	return p.src.Close()
}
