package alloc

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/joshuapare/slabkit/slab/page"
)

// MaxPageSize is the largest page size an allocator accepts.
const MaxPageSize = 1 << 20

// Config defines the allocator geometry and policies.
type Config struct {
	// PageSize is the size of every page (power of two, page.MinPageSize..MaxPageSize).
	// Requests whose size class exceeds it are rejected with ErrTooLarge.
	PageSize int

	// Alignment is the size class granularity (power of two, <= PageSize).
	// A request of n bytes is served from class roundup(n, Alignment).
	Alignment int

	// MagazineCapacity bounds how many freed chunks each magazine retains
	// before returning the oldest half to their pages. 0 retains everything.
	MagazineCapacity int

	// MaxPages caps the number of pages acquired from the source. 0 is unlimited.
	MaxPages int

	// Checked makes Free verify the address, its size class and that the chunk
	// is currently allocated, returning ErrForeign, ErrClassMismatch or
	// ErrDoubleFree instead of corrupting the allocator. It costs a page lookup
	// per free and one bit of bookkeeping per chunk.
	Checked bool

	// Logger receives slow-path events (page acquisition, magazine eviction).
	// nil discards them unless SLAB_LOG_ALLOC is set in the environment.
	Logger *slog.Logger `json:"-"`
}

// Predefined configurations.
var (
	// DefaultConfig: 4 KiB pages, 8-byte classes, unbounded magazines.
	DefaultConfig = Config{
		PageSize:  4096,
		Alignment: 8,
	}

	// ConfigBounded caps magazines at 1024 chunks, returning older chunks to
	// their pages so long-lived allocators do not pin every freed chunk.
	ConfigBounded = Config{
		PageSize:         4096,
		Alignment:        8,
		MagazineCapacity: 1024,
	}

	// ConfigChecked is DefaultConfig with misuse detection on Free.
	ConfigChecked = Config{
		PageSize:  4096,
		Alignment: 8,
		Checked:   true,
	}
)

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.PageSize < page.MinPageSize || c.PageSize > MaxPageSize || !isPow2(c.PageSize) {
		return fmt.Errorf("%w: page size %d must be a power of two in [%d, %d]",
			ErrBadConfig, c.PageSize, page.MinPageSize, MaxPageSize)
	}
	if c.Alignment <= 0 || c.Alignment > c.PageSize || !isPow2(c.Alignment) {
		return fmt.Errorf("%w: alignment %d must be a power of two <= page size",
			ErrBadConfig, c.Alignment)
	}
	if c.MagazineCapacity < 0 {
		return fmt.Errorf("%w: negative magazine capacity %d", ErrBadConfig, c.MagazineCapacity)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("%w: negative page limit %d", ErrBadConfig, c.MaxPages)
	}
	return nil
}

func isPow2(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}
