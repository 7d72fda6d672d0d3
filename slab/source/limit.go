package source

import "fmt"

// Limit wraps a Source and refuses to hand out more than MaxRegions regions.
// It is how an allocator is given a hard page budget.
type Limit struct {
	src        Source
	maxRegions int
	acquired   int
}

// NewLimit caps src at maxRegions regions. maxRegions <= 0 means no cap.
func NewLimit(src Source, maxRegions int) *Limit {
	return &Limit{src: src, maxRegions: maxRegions}
}

// Acquire implements Source.
func (l *Limit) Acquire(size int) ([]byte, error) {
	if l.maxRegions > 0 && l.acquired >= l.maxRegions {
		return nil, fmt.Errorf("%w: limit of %d regions reached", ErrExhausted, l.maxRegions)
	}
	region, err := l.src.Acquire(size)
	if err != nil {
		return nil, err
	}
	l.acquired++
	return region, nil
}

// Acquired returns the number of regions handed out.
func (l *Limit) Acquired() int {
	return l.acquired
}

// Close closes the wrapped source.
func (l *Limit) Close() error {
	return l.src.Close()
}
