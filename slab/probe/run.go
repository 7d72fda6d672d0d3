package probe

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshuapare/slabkit/slab/alloc"
)

// Report is the outcome of Run.
type Report struct {
	Params Params `json:"params"`

	// FillAllocations is the number of samples allocated to see Pages pages.
	FillAllocations int `json:"fill_allocations"`

	// TrashReleased is the number of samples freed after filling.
	TrashReleased int `json:"trash_released"`

	// KnownPageTrials holds, for the check before and after the probe
	// rounds, the allocations it took to land on a known page.
	KnownPageTrials [2]int `json:"known_page_trials"`

	// Retention holds, per round and probe, the allocations needed before
	// the freed probe came back.
	Retention [2][]int `json:"retention"`

	KnownPages []KnownPage   `json:"-"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Passed reports whether every check stayed within its bound.
func (r *Report) Passed() bool {
	for _, n := range r.KnownPageTrials {
		if n == 0 || n > r.Params.KnownPageTrials() {
			return false
		}
	}
	for _, round := range r.Retention {
		if len(round) != len(r.Params.ProbeSizes) {
			return false
		}
		for _, k := range round {
			if k >= r.Params.MaxProbeTrials {
				return false
			}
		}
	}
	return true
}

// Run executes the known-pages scenario against a:
//
//  1. allocate one chunk of every probe size
//  2. allocate samples until Pages distinct pages are known, then free the extras
//  3. a sample allocation lands on a known page within KnownPageTrials
//  4. free the probes; each comes back within MaxProbeTrials (twice)
//  5. a sample allocation still lands on a known page
//
// Everything allocated is freed before returning. The report is filled as far
// as the scenario got, also on error.
func Run(a alloc.Interface, p Params, log *slog.Logger) (*Report, error) {
	pr, err := NewProber(a, p, log)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rep := &Report{Params: pr.p}

	err = run(pr, rep)
	rep.KnownPages = pr.KnownPages()
	if cerr := pr.Cleanup(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("cleanup: %w", cerr))
	}
	rep.Elapsed = time.Since(start)

	pr.log.Info("known-pages probe finished",
		"pages", len(rep.KnownPages),
		"fill", rep.FillAllocations,
		"known_page_trials", rep.KnownPageTrials,
		"elapsed", rep.Elapsed,
		"ok", err == nil,
	)
	return rep, err
}

func run(pr *Prober, rep *Report) error {
	if err := pr.AllocateProbes(); err != nil {
		return err
	}

	n, err := pr.FillPages()
	rep.FillAllocations = n
	if err != nil {
		return err
	}
	if rep.TrashReleased, err = pr.ReleaseTrash(); err != nil {
		return err
	}

	if rep.KnownPageTrials[0], err = pr.AllocateFromKnownPage(); err != nil {
		return err
	}
	if _, err := pr.ReleaseTrash(); err != nil {
		return err
	}

	for round := range rep.Retention {
		if err := pr.FreeProbes(); err != nil {
			return err
		}
		trials, err := pr.ProbeRetention()
		rep.Retention[round] = trials
		if err != nil {
			return fmt.Errorf("round %d: %w", round+1, err)
		}
	}

	rep.KnownPageTrials[1], err = pr.AllocateFromKnownPage()
	return err
}
