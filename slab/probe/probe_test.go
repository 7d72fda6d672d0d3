package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/slabkit/slab/alloc"
	"github.com/joshuapare/slabkit/slab/page"
	"github.com/joshuapare/slabkit/slab/source"
)

func newAllocator(t *testing.T, src source.Source, cfg *alloc.Config) *alloc.Allocator {
	t.Helper()
	a, err := alloc.New(src, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// bump never reuses memory: every Alloc returns a new 64-byte aligned block
// and Free does nothing.
type bump struct {
	next page.Addr
}

func (b *bump) Alloc(int) (page.Addr, error) {
	if b.next == 0 {
		b.next = 1 << 20
	}
	addr := b.next
	b.next += 64
	return addr, nil
}

func (*bump) Free(page.Addr, int) error { return nil }

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams.Validate())
	assert.Equal(t, 1846, DefaultParams.KnownPageTrials())

	tests := []struct {
		name string
		fn   func(*Params)
	}{
		{"zero pages", func(p *Params) { p.Pages = 0 }},
		{"zero sample", func(p *Params) { p.SampleSize = 0 }},
		{"group not pow2", func(p *Params) { p.GroupSize = 100 }},
		{"zero group", func(p *Params) { p.GroupSize = 0 }},
		{"zero trials", func(p *Params) { p.MaxProbeTrials = 0 }},
		{"bad probe", func(p *Params) { p.ProbeSizes = []int{97, -1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams.clone()
			tt.fn(&p)
			require.ErrorIs(t, p.Validate(), ErrBadParams)
		})
	}

	p := DefaultParams.clone()
	p.ProbeSizes = nil
	require.NoError(t, p.Validate(), "probes are optional")
}

func TestParams_CloneIsIndependent(t *testing.T) {
	p := DefaultParams.clone()
	p.ProbeSizes[0] = 1
	assert.Equal(t, 97, DefaultParams.ProbeSizes[0])
}

func TestRun_KnownPages(t *testing.T) {
	a := newAllocator(t, source.NewHeap(0), nil)

	rep, err := Run(a, DefaultParams, nil)
	require.NoError(t, err)
	require.True(t, rep.Passed())

	assert.Len(t, rep.KnownPages, 101)
	assert.Equal(t, rep.FillAllocations-101, rep.TrashReleased)
	assert.Equal(t, [2]int{1, 1}, rep.KnownPageTrials)
	assert.Equal(t, [2][]int{{0, 0, 0}, {0, 0, 0}}, rep.Retention)

	// Run frees everything it allocated.
	st := a.Stats()
	assert.Equal(t, st.AllocFastPath+st.AllocSlowPath, st.FreeCalls)
}

func TestRun_ConfigVariants(t *testing.T) {
	tests := []struct {
		name string
		cfg  alloc.Config
	}{
		{"default", alloc.DefaultConfig},
		{"bounded", alloc.ConfigBounded},
		{"checked", alloc.ConfigChecked},
		{"wide alignment", alloc.Config{PageSize: 8192, Alignment: 32}},
		{"tiny magazines", alloc.Config{PageSize: 4096, Alignment: 8, MagazineCapacity: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			a := newAllocator(t, source.NewHeap(0), &cfg)

			rep, err := Run(a, DefaultParams, nil)
			require.NoError(t, err)
			assert.True(t, rep.Passed())
		})
	}
}

func TestRun_ThroughCache(t *testing.T) {
	a := newAllocator(t, source.NewHeap(0), nil)
	c := a.NewCache()

	rep, err := Run(c, DefaultParams, nil)
	require.NoError(t, err)
	assert.True(t, rep.Passed())
	assert.Zero(t, a.Stats().AllocCalls, "allocator front end untouched")
}

func TestRun_SmallAllocatorPages(t *testing.T) {
	// Allocator pages of the grouping size: every page holds 16 samples.
	a := newAllocator(t, source.NewHeap(0), &alloc.Config{PageSize: 128, Alignment: 8})

	p := DefaultParams.clone()
	p.ProbeSizes = []int{40, 72, 120}

	rep, err := Run(a, p, nil)
	require.NoError(t, err)
	assert.True(t, rep.Passed())
	assert.Equal(t, 100*16+1, rep.FillAllocations)
}

func TestProber_PageLocality(t *testing.T) {
	a := newAllocator(t, source.NewHeap(0), &alloc.Config{PageSize: 128, Alignment: 8})

	p := DefaultParams.clone()
	p.ProbeSizes = nil
	pr, err := NewProber(a, p, nil)
	require.NoError(t, err)

	_, err = pr.FillPages()
	require.NoError(t, err)

	for _, kp := range pr.KnownPages() {
		// Address arithmetic and the page arena agree on page identity.
		assert.Equal(t, kp.Group, a.PageID(kp.Sample))
		info, ok := a.PageOf(kp.Sample)
		require.True(t, ok)
		assert.Equal(t, kp.Group, uintptr(info.Base)/128)
		assert.Equal(t, 8, info.Class)
	}

	// Every trash sample sits on a page that was already known.
	assert.Equal(t, 1500, pr.Trash())
	_, err = pr.ReleaseTrash()
	require.NoError(t, err)

	n, err := pr.AllocateFromKnownPage()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, p.KnownPageTrials())
	require.NoError(t, pr.Cleanup())
}

func TestProber_KnownPageAfterFlush(t *testing.T) {
	a := newAllocator(t, source.NewHeap(0), nil)

	p := DefaultParams.clone()
	p.ProbeSizes = nil
	pr, err := NewProber(a, p, nil)
	require.NoError(t, err)

	_, err = pr.FillPages()
	require.NoError(t, err)
	_, err = pr.ReleaseTrash()
	require.NoError(t, err)

	// With the magazines empty, reuse has to come from partially used pages.
	a.Flush()
	require.Zero(t, a.Stats().Cached)
	slow := a.Stats().AllocSlowPath

	n, err := pr.AllocateFromKnownPage()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, slow+1, a.Stats().AllocSlowPath, "served by carving")
	require.NoError(t, pr.Cleanup())
}

func TestProber_NoKnownPage(t *testing.T) {
	p := Params{Pages: 2, SampleSize: 7, GroupSize: 64, MaxProbeTrials: 5}

	rep, err := Run(&bump{}, p, nil)
	require.ErrorIs(t, err, ErrNoKnownPage)
	assert.False(t, rep.Passed())
	assert.Equal(t, 2, rep.FillAllocations)
	assert.Len(t, rep.KnownPages, 2)
}

func TestProber_NotRetained(t *testing.T) {
	p := Params{Pages: 1, SampleSize: 8, GroupSize: 64, ProbeSizes: []int{16, 24}, MaxProbeTrials: 5}
	pr, err := NewProber(&bump{}, p, nil)
	require.NoError(t, err)

	require.NoError(t, pr.AllocateProbes())
	before := pr.Probes()
	require.NoError(t, pr.FreeProbes())

	trials, err := pr.ProbeRetention()
	require.ErrorIs(t, err, ErrNotRetained)
	assert.Equal(t, []int{5, 5}, trials)
	assert.NotEqual(t, before, pr.Probes())

	require.NoError(t, pr.Cleanup())
}

func TestProber_StepOrder(t *testing.T) {
	a := newAllocator(t, source.NewHeap(0), nil)
	pr, err := NewProber(a, DefaultParams, nil)
	require.NoError(t, err)

	_, err = pr.ProbeRetention()
	require.ErrorIs(t, err, ErrProbesFreed)
	require.ErrorIs(t, pr.FreeProbes(), ErrProbesFreed)

	require.NoError(t, pr.AllocateProbes())
	require.ErrorIs(t, pr.AllocateProbes(), ErrProbesFreed)
	require.NoError(t, pr.FreeProbes())
	require.ErrorIs(t, pr.FreeProbes(), ErrProbesFreed)

	trials, err := pr.ProbeRetention()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, trials)
	require.NoError(t, pr.Cleanup())
}

func TestRun_OutOfMemory(t *testing.T) {
	a := newAllocator(t, source.NewHeap(0), &alloc.Config{PageSize: 4096, Alignment: 8, MaxPages: 3})

	rep, err := Run(a, DefaultParams, nil)
	require.ErrorIs(t, err, alloc.ErrOutOfMemory)
	require.NotNil(t, rep)
	assert.False(t, rep.Passed())
}
