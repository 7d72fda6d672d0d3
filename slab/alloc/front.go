package alloc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/slabkit/slab/magazine"
	"github.com/joshuapare/slabkit/slab/page"
)

// shared is the state every front end of one allocator uses: the page pool
// behind a mutex, plus the immutable geometry.
type shared struct {
	cfg     Config
	classes sizeClasses
	log     *slog.Logger

	mu     sync.Mutex
	pool   *page.Pool
	closed atomic.Bool
}

// carve takes a chunk of class from the page pool.
func (sh *shared) carve(class int) (page.Addr, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.closed.Load() {
		return 0, ErrClosed
	}
	return sh.pool.Carve(class)
}

// release returns chunks evicted or flushed from a magazine to their pages.
func (sh *shared) release(class int, batch []page.Addr) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.closed.Load() {
		return
	}
	for _, addr := range batch {
		// Only possible when an unchecked caller freed an address it did not own.
		if err := sh.pool.Release(addr); err != nil {
			sh.log.Warn("dropping chunk", "class", class, "addr", fmt.Sprintf("%#x", uintptr(addr)), "err", err)
		}
	}
	sh.log.Debug("chunks returned to pages", "class", class, "count", len(batch))
}

// mark records that a chunk taken from a magazine is allocated again (checked mode).
func (sh *shared) mark(addr page.Addr) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	pg, ok := sh.pool.Lookup(addr)
	if !ok {
		return fmt.Errorf("%w: %#x", ErrForeign, uintptr(addr))
	}
	return pg.Mark(addr)
}

// check validates a free of addr with the given class and records the chunk
// as no longer allocated (checked mode).
func (sh *shared) check(addr page.Addr, class int) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	pg, ok := sh.pool.Lookup(addr)
	if !ok {
		return fmt.Errorf("%w: %#x", ErrForeign, uintptr(addr))
	}
	if pg.Class() != class {
		return fmt.Errorf("%w: %#x belongs to class %d, freed as class %d",
			ErrClassMismatch, uintptr(addr), pg.Class(), class)
	}
	if err := pg.Unmark(addr); err != nil {
		switch {
		case errors.Is(err, page.ErrNotLive):
			return fmt.Errorf("%w: %#x", ErrDoubleFree, uintptr(addr))
		case errors.Is(err, page.ErrNotChunk):
			return fmt.Errorf("%w: %w", ErrForeign, err)
		default:
			return err
		}
	}
	return nil
}

// front is one set of magazines in front of the shared page pool. The
// Allocator has one; every Cache has its own.
type front struct {
	sh *shared

	// mags is indexed by size class slot; entries are created on first free.
	mags []*magazine.Magazine

	// active lists the classes that have a magazine, in order of creation.
	active []int

	stats Stats
}

func (f *front) init(sh *shared) {
	f.sh = sh
	f.mags = make([]*magazine.Magazine, sh.classes.numSlots())
}

// alloc serves a request from the class magazine, falling back to the pool.
func (f *front) alloc(size int) (page.Addr, error) {
	if f.sh.closed.Load() {
		return 0, ErrClosed
	}
	class, err := f.sh.classes.classOf(size)
	if err != nil {
		return 0, err
	}
	f.stats.AllocCalls++

	if m := f.mags[f.sh.classes.slot(class)]; m != nil {
		if addr, ok := m.Pop(); ok {
			if f.sh.cfg.Checked {
				if err := f.sh.mark(addr); err != nil {
					f.stats.AllocFailures++
					return 0, err
				}
			}
			f.stats.AllocFastPath++
			return addr, nil
		}
	}

	addr, err := f.sh.carve(class)
	if err != nil {
		f.stats.AllocFailures++
		return 0, err
	}
	f.stats.AllocSlowPath++
	return addr, nil
}

// free caches addr in the magazine of the class size resolves to.
func (f *front) free(addr page.Addr, size int) error {
	if addr == 0 {
		return nil
	}
	if f.sh.closed.Load() {
		return ErrClosed
	}
	class, err := f.sh.classes.classOf(size)
	if err != nil {
		return err
	}
	if f.sh.cfg.Checked {
		if err := f.sh.check(addr, class); err != nil {
			return err
		}
	}
	f.stats.FreeCalls++
	f.magazine(class).Push(addr)
	return nil
}

// magazine returns the magazine for class, creating it on first use.
func (f *front) magazine(class int) *magazine.Magazine {
	slot := f.sh.classes.slot(class)
	if m := f.mags[slot]; m != nil {
		return m
	}
	m := magazine.New(class, f.sh.cfg.MagazineCapacity, func(batch []page.Addr) {
		f.stats.Evicted += len(batch)
		f.sh.release(class, batch)
	})
	f.mags[slot] = m
	f.active = append(f.active, class)
	return m
}

// flush returns every cached chunk to its page.
func (f *front) flush() {
	for _, class := range f.active {
		m := f.mags[f.sh.classes.slot(class)]
		m.Drain(func(batch []page.Addr) {
			f.stats.Flushed += len(batch)
			f.sh.release(class, batch)
		})
	}
}

// cached returns the number of chunks held in this front's magazines.
func (f *front) cached() int {
	n := 0
	for _, class := range f.active {
		n += f.mags[f.sh.classes.slot(class)].Len()
	}
	return n
}

// snapshot returns this front's counters together with the shared pool's.
func (f *front) snapshot() Stats {
	s := f.stats
	s.Cached = f.cached()
	s.Magazines = len(f.active)

	f.sh.mu.Lock()
	if !f.sh.closed.Load() {
		s.Pool = f.sh.pool.Stats()
	}
	f.sh.mu.Unlock()
	return s
}

// classesInUse returns the classes with a magazine, in order of first free.
func (f *front) classesInUse() []int {
	out := make([]int, len(f.active))
	copy(out, f.active)
	return out
}
