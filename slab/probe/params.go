package probe

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrBadParams indicates invalid probe parameters.
var ErrBadParams = errors.New("probe: bad params")

// Params are the probe's bounds. The defaults reproduce the classic
// known-pages check: 101 pages of 128 bytes sampled with 7-byte blocks, and
// three magazine probes that must come back within 1031 allocations.
type Params struct {
	// Pages is the number of distinct pages to sample.
	Pages int `json:"pages"`

	// SampleSize is the request size used to populate pages.
	SampleSize int `json:"sample_size"`

	// GroupSize is the page size used to group addresses: an address belongs
	// to page addr/GroupSize. It is independent of the allocator's page size
	// and must be a power of two.
	GroupSize int `json:"group_size"`

	// ProbeSizes are request sizes expected to be otherwise unused, one
	// retained chunk per size.
	ProbeSizes []int `json:"probe_sizes"`

	// MaxProbeTrials bounds the allocations allowed before a freed probe must
	// be handed back. It must be at least the allocator's magazine capacity + 1.
	MaxProbeTrials int `json:"max_probe_trials"`
}

// DefaultParams are the classic known-pages bounds.
var DefaultParams = Params{
	Pages:          101,
	SampleSize:     7,
	GroupSize:      128,
	ProbeSizes:     []int{97, 265, 347},
	MaxProbeTrials: 1031,
}

// KnownPageTrials is the upper bound of allocations needed to land on a known
// page again: Pages*GroupSize/SampleSize.
func (p Params) KnownPageTrials() int {
	return p.Pages * p.GroupSize / p.SampleSize
}

// Validate reports whether the parameters are usable.
func (p Params) Validate() error {
	switch {
	case p.Pages <= 0:
		return fmt.Errorf("%w: pages must be positive, got %d", ErrBadParams, p.Pages)
	case p.SampleSize <= 0:
		return fmt.Errorf("%w: sample size must be positive, got %d", ErrBadParams, p.SampleSize)
	case p.GroupSize <= 0 || bits.OnesCount(uint(p.GroupSize)) != 1:
		return fmt.Errorf("%w: group size %d must be a power of two", ErrBadParams, p.GroupSize)
	case p.MaxProbeTrials <= 0:
		return fmt.Errorf("%w: max probe trials must be positive, got %d", ErrBadParams, p.MaxProbeTrials)
	}
	for _, size := range p.ProbeSizes {
		if size <= 0 {
			return fmt.Errorf("%w: probe size must be positive, got %d", ErrBadParams, size)
		}
	}
	return nil
}

// clone returns p with its own ProbeSizes slice.
func (p Params) clone() Params {
	p.ProbeSizes = append([]int(nil), p.ProbeSizes...)
	return p
}
