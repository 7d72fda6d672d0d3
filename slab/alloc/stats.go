package alloc

import "github.com/joshuapare/slabkit/slab/page"

// Stats holds allocator counters for one front end (an Allocator or a Cache)
// plus a snapshot of the shared page pool.
type Stats struct {
	AllocCalls    int // Alloc calls with a valid size
	AllocFastPath int // served from a magazine
	AllocSlowPath int // carved from a page
	AllocFailures int // failed after size validation (out of memory)
	FreeCalls     int // successful non-nil Free calls
	Evicted       int // chunks returned to pages by full magazines
	Flushed       int // chunks returned to pages by Flush
	Cached        int // chunks currently held in magazines
	Magazines     int // magazines created (one per class freed at least once)

	Pool page.Stats
}

// HitRate returns the fraction of successful allocations served from magazines.
func (s Stats) HitRate() float64 {
	served := s.AllocFastPath + s.AllocSlowPath
	if served == 0 {
		return 0
	}
	return float64(s.AllocFastPath) / float64(served)
}
