package alloc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/slabkit/slab/page"
	"github.com/joshuapare/slabkit/slab/source"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", DefaultConfig, true},
		{"bounded", ConfigBounded, true},
		{"checked", ConfigChecked, true},
		{"small pages", Config{PageSize: 128, Alignment: 8}, true},
		{"alignment equals page", Config{PageSize: 64, Alignment: 64}, true},
		{"page not pow2", Config{PageSize: 4000, Alignment: 8}, false},
		{"page too small", Config{PageSize: 32, Alignment: 8}, false},
		{"page too large", Config{PageSize: MaxPageSize * 2, Alignment: 8}, false},
		{"zero alignment", Config{PageSize: 4096}, false},
		{"alignment not pow2", Config{PageSize: 4096, Alignment: 12}, false},
		{"alignment above page", Config{PageSize: 128, Alignment: 256}, false},
		{"negative magazine", Config{PageSize: 4096, Alignment: 8, MagazineCapacity: -1}, false},
		{"negative pages", Config{PageSize: 4096, Alignment: 8, MaxPages: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrBadConfig)
			}
		})
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(source.NewHeap(0), &Config{PageSize: 100, Alignment: 8})
	require.ErrorIs(t, err, ErrBadConfig)
}

func Test_Alloc_SizeClassRouting(t *testing.T) {
	a := newTestAllocator(t, nil)

	tests := []struct {
		size  int
		class int
	}{
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{97, 104},
		{265, 272},
		{347, 352},
		{4095, 4096},
		{4096, 4096},
	}
	for _, tt := range tests {
		class, err := a.SizeClass(tt.size)
		require.NoError(t, err)
		assert.Equal(t, tt.class, class, "size %d", tt.size)

		addr := mustAlloc(t, a, tt.size)
		info, ok := a.PageOf(addr)
		require.True(t, ok)
		assert.Equal(t, tt.class, info.Class, "size %d served from wrong class", tt.size)
	}

	_, err := a.Alloc(0)
	require.ErrorIs(t, err, ErrZeroSize)
	_, err = a.Alloc(-3)
	require.ErrorIs(t, err, ErrZeroSize)
	_, err = a.Alloc(4097)
	require.ErrorIs(t, err, ErrTooLarge)
	_, err = a.SizeClass(1 << 40)
	require.ErrorIs(t, err, ErrTooLarge)
}

func Test_Alloc_CustomAlignment(t *testing.T) {
	a := newTestAllocator(t, withConfig(func(c *Config) { c.Alignment = 64 }))

	class, err := a.SizeClass(65)
	require.NoError(t, err)
	assert.Equal(t, 128, class)

	addr := mustAlloc(t, a, 1)
	assert.Zero(t, uintptr(addr)%64, "chunks of an aligned class start on class boundaries")
}

func Test_Alloc_FreeThenAllocIsLIFO(t *testing.T) {
	a := newTestAllocator(t, nil)

	x := mustAlloc(t, a, 24)
	y := mustAlloc(t, a, 24)
	z := mustAlloc(t, a, 24)

	require.NoError(t, a.Free(x, 24))
	require.NoError(t, a.Free(z, 24))
	require.NoError(t, a.Free(y, 20)) // same class as 24

	assert.Equal(t, y, mustAlloc(t, a, 17))
	assert.Equal(t, z, mustAlloc(t, a, 24))
	assert.Equal(t, x, mustAlloc(t, a, 24))
}

func Test_Alloc_FreeNilIsNoop(t *testing.T) {
	a := newTestAllocator(t, nil)
	require.NoError(t, a.Free(0, 64))
	assert.Zero(t, a.Stats().FreeCalls)
}

func Test_Alloc_MagazineRetention(t *testing.T) {
	a := newTestAllocator(t, nil)
	probes := []int{97, 265, 347}
	const maxTrials = 1031

	// Keep the sample class busy so the probes compete with unrelated traffic.
	for range 2000 {
		mustAlloc(t, a, 7)
	}

	addrs := make([]page.Addr, len(probes))
	for i, size := range probes {
		addrs[i] = mustAlloc(t, a, size)
	}

	for round := range 2 {
		for i, size := range probes {
			require.NoError(t, a.Free(addrs[i], size))
		}
		for i, size := range probes {
			k := trialsUntil(t, a, size, addrs[i], maxTrials)
			assert.Less(t, k, maxTrials, "round %d: probe %d not retained", round, size)
		}
	}
}

func Test_Alloc_NoCrossClassInterference(t *testing.T) {
	a := newTestAllocator(t, withConfig(func(c *Config) { c.PageSize = 512 }))

	rng := rand.New(rand.NewSource(7))
	sizes := []int{1, 8, 13, 40, 97, 200, 511}
	live := make(map[page.Addr]int)

	for step := range 20000 {
		if len(live) > 0 && rng.Intn(2) == 0 {
			for addr, size := range live {
				require.NoError(t, a.Free(addr, size), "step %d", step)
				delete(live, addr)
				break
			}
			continue
		}

		size := sizes[rng.Intn(len(sizes))]
		addr := mustAlloc(t, a, size)
		_, dup := live[addr]
		require.False(t, dup, "step %d: %#x handed out twice", step, uintptr(addr))
		live[addr] = size

		class, err := a.SizeClass(size)
		require.NoError(t, err)
		info, ok := a.PageOf(addr)
		require.True(t, ok)
		require.Equal(t, class, info.Class, "step %d: size %d served from class %d", step, size, info.Class)
		require.Zero(t, int(addr-info.Base)%class, "step %d: not a chunk boundary", step)
	}
}

func Test_Alloc_OutOfMemory(t *testing.T) {
	a := newTestAllocator(t, withConfig(func(c *Config) {
		c.PageSize = 128
		c.MaxPages = 2
	}))

	var addrs []page.Addr
	for range 8 {
		addrs = append(addrs, mustAlloc(t, a, 32))
	}

	_, err := a.Alloc(32)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.ErrorIs(t, err, source.ErrExhausted)
	assert.Equal(t, 1, a.Stats().AllocFailures)

	// Releasing memory is the recovery path.
	require.NoError(t, a.Free(addrs[5], 32))
	addr, err := a.Alloc(32)
	require.NoError(t, err)
	assert.Equal(t, addrs[5], addr)
}

func Test_Alloc_BytesIsolation(t *testing.T) {
	a := newTestAllocator(t, nil)

	const n = 64
	addrs := make([]page.Addr, n)
	for i := range n {
		addrs[i] = mustAlloc(t, a, 40)
		buf, err := a.Bytes(addrs[i], 40)
		require.NoError(t, err)
		require.Len(t, buf, 40)
		for j := range buf {
			buf[j] = byte(i)
		}
	}
	for i, addr := range addrs {
		buf, err := a.Bytes(addr, 40)
		require.NoError(t, err)
		for _, v := range buf {
			require.Equal(t, byte(i), v, "chunk %d overwritten", i)
		}
	}

	_, err := a.Bytes(addrs[0], 41)
	require.ErrorIs(t, err, page.ErrNotChunk)
	_, err = a.Bytes(page.Addr(16), 8)
	require.ErrorIs(t, err, ErrForeign)
}

func Test_Alloc_Stats(t *testing.T) {
	a := newTestAllocator(t, nil)

	x := mustAlloc(t, a, 16)
	mustAlloc(t, a, 16)
	require.NoError(t, a.Free(x, 16))
	mustAlloc(t, a, 16)
	mustAlloc(t, a, 300)

	st := a.Stats()
	assert.Equal(t, 4, st.AllocCalls)
	assert.Equal(t, 1, st.AllocFastPath)
	assert.Equal(t, 3, st.AllocSlowPath)
	assert.Equal(t, 1, st.FreeCalls)
	assert.Equal(t, 1, st.Magazines)
	assert.Zero(t, st.Cached)
	assert.Equal(t, 2, st.Pool.Pages)
	assert.Equal(t, 2, st.Pool.Classes)
	assert.Equal(t, 3, st.Pool.Carved)
	assert.InDelta(t, 0.25, st.HitRate(), 1e-9)
	assert.Equal(t, []int{16}, a.Classes())
}

func Test_Alloc_BoundedMagazineReturnsToPages(t *testing.T) {
	a := newTestAllocator(t, withConfig(func(c *Config) { c.MagazineCapacity = 4 }))

	addrs := make([]page.Addr, 100)
	for i := range addrs {
		addrs[i] = mustAlloc(t, a, 64)
	}
	pages := a.Stats().Pool.Pages

	for _, addr := range addrs {
		require.NoError(t, a.Free(addr, 64))
	}

	st := a.Stats()
	assert.LessOrEqual(t, st.Cached, 4)
	assert.Equal(t, 100, st.Cached+st.Evicted)
	assert.Equal(t, st.Evicted, st.Pool.Released)

	// The most recent free is still first in line.
	assert.Equal(t, addrs[99], mustAlloc(t, a, 64))

	// Everything else is reused from magazine or pages without growing.
	for range 99 {
		mustAlloc(t, a, 64)
	}
	assert.Equal(t, pages, a.Stats().Pool.Pages)
}

func Test_Alloc_BoundedRetentionWithinCapacity(t *testing.T) {
	const capacity = 64
	a := newTestAllocator(t, withConfig(func(c *Config) { c.MagazineCapacity = capacity }))

	// Fill the magazine well past capacity, then free the probe last.
	probe := mustAlloc(t, a, 97)
	var others []page.Addr
	for range 3 * capacity {
		others = append(others, mustAlloc(t, a, 97))
	}
	for _, addr := range others {
		require.NoError(t, a.Free(addr, 97))
	}
	require.NoError(t, a.Free(probe, 97))

	k := trialsUntil(t, a, 97, probe, capacity+1)
	assert.Zero(t, k)
}

func Test_Alloc_Flush(t *testing.T) {
	a := newTestAllocator(t, nil)

	var addrs []page.Addr
	for range 10 {
		addrs = append(addrs, mustAlloc(t, a, 8))
	}
	for _, addr := range addrs {
		require.NoError(t, a.Free(addr, 8))
	}
	require.Equal(t, 10, a.Stats().Cached)

	a.Flush()
	st := a.Stats()
	assert.Zero(t, st.Cached)
	assert.Equal(t, 10, st.Flushed)
	assert.Equal(t, 10, st.Pool.Released)

	info, ok := a.PageOf(addrs[0])
	require.True(t, ok)
	assert.Equal(t, info.Chunks, info.FreeChunks, "all chunks back on the page")
}

func Test_Alloc_Closed(t *testing.T) {
	a, err := New(source.NewHeap(0), nil)
	require.NoError(t, err)
	addr := mustAlloc(t, a, 8)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err = a.Alloc(8)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, a.Free(addr, 8), ErrClosed)
	_, err = a.Bytes(addr, 8)
	require.ErrorIs(t, err, ErrClosed)
	_, ok := a.PageOf(addr)
	assert.False(t, ok)
	assert.Zero(t, a.Stats().Pool.Pages)
}

func Test_Alloc_IndependentInstances(t *testing.T) {
	a := newTestAllocator(t, nil)
	b := newTestAllocator(t, nil)

	x := mustAlloc(t, a, 32)
	require.NoError(t, a.Free(x, 32))

	y := mustAlloc(t, b, 32)
	assert.NotEqual(t, x, y)
	_, ok := b.PageOf(x)
	assert.False(t, ok, "allocators must not share pages")
	assert.Equal(t, x, mustAlloc(t, a, 32))
}

func Benchmark_Alloc_FreeCycle(b *testing.B) {
	a := newTestAllocator(b, nil)
	b.ResetTimer()
	b.ReportAllocs()

	for i := range b.N {
		size := 8 + (i%32)*8
		addr, err := a.Alloc(size)
		if err != nil {
			b.Fatal(err)
		}
		if err := a.Free(addr, size); err != nil {
			b.Fatal(err)
		}
	}
}

func Benchmark_Alloc_SlowPath(b *testing.B) {
	a := newTestAllocator(b, nil)
	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		if _, err := a.Alloc(64); err != nil {
			b.Fatal(err)
		}
	}
}
