package probe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/slabkit/slab/alloc"
	"github.com/joshuapare/slabkit/slab/page"
)

var (
	// ErrNoKnownPage indicates that no sample allocation landed on a known
	// page within KnownPageTrials allocations.
	ErrNoKnownPage = errors.New("probe: no allocation from a known page")

	// ErrNotRetained indicates that a freed probe was not handed back within
	// MaxProbeTrials allocations of its size.
	ErrNotRetained = errors.New("probe: freed chunk not retained")

	// ErrProbesFreed indicates a step that needs allocated probes ran while
	// they were freed, or the other way around.
	ErrProbesFreed = errors.New("probe: probes in wrong state")
)

// KnownPage is a page seen while filling, with the sample that revealed it.
type KnownPage struct {
	Group  uintptr   `json:"group"`
	Sample page.Addr `json:"sample"`
}

// Prober drives an allocator through the known-pages scenario one step at a
// time. Run executes the whole scenario; the steps are exported so tests can
// check the allocator between them.
//
// The prober keeps two kinds of allocations: samples that revealed a new page
// (kept until Cleanup) and trash, released by ReleaseTrash.
type Prober struct {
	a   alloc.Interface
	p   Params
	log *slog.Logger

	known map[uintptr]int
	pages []KnownPage
	trash []page.Addr

	probes      []page.Addr
	probesFreed bool
}

// NewProber creates a prober for a. log may be nil.
func NewProber(a alloc.Interface, p Params, log *slog.Logger) (*Prober, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Prober{
		a:     a,
		p:     p.clone(),
		log:   log,
		known: make(map[uintptr]int, p.Pages),
	}, nil
}

// Group returns the page identity of addr: addr / GroupSize.
func (pr *Prober) Group(addr page.Addr) uintptr {
	return uintptr(addr) / uintptr(pr.p.GroupSize)
}

// IsKnown reports whether addr lies on a page seen while filling.
func (pr *Prober) IsKnown(addr page.Addr) bool {
	_, ok := pr.known[pr.Group(addr)]
	return ok
}

// KnownPages returns the pages seen so far, in discovery order.
func (pr *Prober) KnownPages() []KnownPage {
	return append([]KnownPage(nil), pr.pages...)
}

// Trash returns the number of allocations waiting for ReleaseTrash.
func (pr *Prober) Trash() int {
	return len(pr.trash)
}

// AllocateProbes allocates one chunk of every probe size.
func (pr *Prober) AllocateProbes() error {
	if pr.probes != nil {
		return fmt.Errorf("%w: already allocated", ErrProbesFreed)
	}
	pr.probes = make([]page.Addr, len(pr.p.ProbeSizes))
	for i, size := range pr.p.ProbeSizes {
		addr, err := pr.a.Alloc(size)
		if err != nil {
			return fmt.Errorf("allocate probe %d: %w", size, err)
		}
		pr.probes[i] = addr
	}
	return nil
}

// Probes returns the probe addresses.
func (pr *Prober) Probes() []page.Addr {
	return append([]page.Addr(nil), pr.probes...)
}

// FillPages allocates samples until Pages distinct pages have been seen.
// Samples landing on a known page become trash. Returns the number of
// allocations made.
func (pr *Prober) FillPages() (int, error) {
	n := 0
	for len(pr.pages) < pr.p.Pages {
		addr, err := pr.a.Alloc(pr.p.SampleSize)
		if err != nil {
			return n, fmt.Errorf("fill page %d of %d: %w", len(pr.pages)+1, pr.p.Pages, err)
		}
		n++

		g := pr.Group(addr)
		if _, ok := pr.known[g]; ok {
			pr.trash = append(pr.trash, addr)
			continue
		}
		pr.known[g] = len(pr.pages)
		pr.pages = append(pr.pages, KnownPage{Group: g, Sample: addr})
	}
	pr.log.Debug("pages filled", "pages", len(pr.pages), "allocations", n, "trash", len(pr.trash))
	return n, nil
}

// ReleaseTrash frees every trash allocation, most recent first.
func (pr *Prober) ReleaseTrash() (int, error) {
	n := len(pr.trash)
	for i := n - 1; i >= 0; i-- {
		if err := pr.a.Free(pr.trash[i], pr.p.SampleSize); err != nil {
			pr.trash = pr.trash[:i+1]
			return n - len(pr.trash), fmt.Errorf("release trash: %w", err)
		}
	}
	pr.trash = pr.trash[:0]
	return n, nil
}

// AllocateFromKnownPage allocates samples, keeping them as trash, until one
// lands on a known page. Returns the number of allocations it took (1 when
// the first one did). Fails with ErrNoKnownPage after KnownPageTrials.
func (pr *Prober) AllocateFromKnownPage() (int, error) {
	limit := pr.p.KnownPageTrials()
	for i := range limit {
		addr, err := pr.a.Alloc(pr.p.SampleSize)
		if err != nil {
			return i, fmt.Errorf("allocate from known page: %w", err)
		}
		pr.trash = append(pr.trash, addr)
		if pr.IsKnown(addr) {
			return i + 1, nil
		}
	}
	return limit, fmt.Errorf("%w: %d trials over %d pages", ErrNoKnownPage, limit, len(pr.pages))
}

// FreeProbes frees every probe chunk so it can be retained by its magazine.
func (pr *Prober) FreeProbes() error {
	if pr.probes == nil || pr.probesFreed {
		return fmt.Errorf("%w: not allocated", ErrProbesFreed)
	}
	for i, size := range pr.p.ProbeSizes {
		if err := pr.a.Free(pr.probes[i], size); err != nil {
			return fmt.Errorf("free probe %d: %w", size, err)
		}
	}
	pr.probesFreed = true
	return nil
}

// ProbeRetention checks that every freed probe comes back. For each probe
// size it allocates until the freed address is returned, then frees the
// other allocations. Returns, per probe, the number of allocations that were
// not the probe. Fails with ErrNotRetained when one reaches MaxProbeTrials;
// the probes stay allocated either way.
func (pr *Prober) ProbeRetention() ([]int, error) {
	if !pr.probesFreed {
		return nil, fmt.Errorf("%w: free them first", ErrProbesFreed)
	}

	trials := make([]int, len(pr.p.ProbeSizes))
	var errs []error
	for i, size := range pr.p.ProbeSizes {
		var trash []page.Addr
		k := 0
		for ; k < pr.p.MaxProbeTrials; k++ {
			addr, err := pr.a.Alloc(size)
			if err != nil {
				return trials, fmt.Errorf("probe %d: %w", size, err)
			}
			if addr == pr.probes[i] {
				break
			}
			trash = append(trash, addr)
		}
		for j := len(trash) - 1; j >= 0; j-- {
			if err := pr.a.Free(trash[j], size); err != nil {
				return trials, fmt.Errorf("probe %d: release trash: %w", size, err)
			}
		}

		trials[i] = k
		if k >= pr.p.MaxProbeTrials {
			// The probe is still free; take the slot back with a fresh chunk
			// so Cleanup frees something the allocator handed out.
			addr, err := pr.a.Alloc(size)
			if err != nil {
				return trials, fmt.Errorf("probe %d: %w", size, err)
			}
			pr.probes[i] = addr
			errs = append(errs, fmt.Errorf("%w: size %d after %d trials", ErrNotRetained, size, k))
		}
		pr.log.Debug("probe retained", "size", size, "trials", k)
	}
	pr.probesFreed = false
	return trials, errors.Join(errs...)
}

// Cleanup frees the probes (when allocated), the trash and the page samples.
func (pr *Prober) Cleanup() error {
	var errs []error
	if pr.probes != nil && !pr.probesFreed {
		errs = append(errs, pr.FreeProbes())
	}
	if _, err := pr.ReleaseTrash(); err != nil {
		errs = append(errs, err)
	}
	for _, kp := range pr.pages {
		if err := pr.a.Free(kp.Sample, pr.p.SampleSize); err != nil {
			errs = append(errs, fmt.Errorf("free sample: %w", err))
			break
		}
	}
	pr.pages = nil
	clear(pr.known)
	return errors.Join(errs...)
}
