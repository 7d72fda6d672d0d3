package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/slabkit/slab/page"
	"github.com/joshuapare/slabkit/slab/source"
)

// newTestAllocator creates a heap-backed allocator closed at test cleanup.
func newTestAllocator(t testing.TB, cfg *Config) *Allocator {
	t.Helper()
	a, err := New(source.NewHeap(0), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// withConfig returns DefaultConfig modified by fn.
func withConfig(fn func(*Config)) *Config {
	cfg := DefaultConfig
	fn(&cfg)
	return &cfg
}

// mustAlloc allocates size bytes or fails the test.
func mustAlloc(t testing.TB, a Interface, size int) page.Addr {
	t.Helper()
	addr, err := a.Alloc(size)
	require.NoError(t, err, "Alloc(%d)", size)
	require.NotZero(t, addr)
	return addr
}

// trialsUntil allocates size bytes until want comes back, releasing the other
// allocations afterwards. Returns the number of allocations that were not want.
func trialsUntil(t testing.TB, a Interface, size int, want page.Addr, maxTrials int) int {
	t.Helper()
	var trash []page.Addr
	k := 0
	for ; k < maxTrials; k++ {
		addr := mustAlloc(t, a, size)
		if addr == want {
			break
		}
		trash = append(trash, addr)
	}
	for _, addr := range trash {
		require.NoError(t, a.Free(addr, size))
	}
	return k
}
