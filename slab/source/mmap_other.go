//go:build !unix

package source

// Mmap falls back to Go-heap segments where anonymous mappings are not available.
type Mmap struct {
	*Heap
}

// NewMmap creates a heap-backed stand-in for the mmap source.
func NewMmap(segmentSize int) *Mmap {
	return &Mmap{Heap: NewHeap(segmentSize)}
}
