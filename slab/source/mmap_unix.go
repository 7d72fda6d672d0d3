//go:build unix

package source

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Mmap carves regions out of anonymous private mappings. The memory lives
// outside the Go heap and is returned to the OS by Close.
type Mmap struct {
	segmentSize int
	carve       carver
	segments    [][]byte
	closed      bool
}

// NewMmap creates an mmap-backed source. segmentSize of 0 selects DefaultSegmentSize.
func NewMmap(segmentSize int) *Mmap {
	return &Mmap{segmentSize: segmentSize}
}

// Acquire implements Source.
func (m *Mmap) Acquire(size int) ([]byte, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if !validSize(size) {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}

	if region := m.carve.take(size); region != nil {
		return region, nil
	}

	n := mapLength(segmentBytes(m.segmentSize, size), size)
	seg, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %w", ErrExhausted, n, err)
	}

	m.segments = append(m.segments, seg)
	m.carve.reset(seg)
	return m.carve.take(size), nil
}

// Segments returns the number of live mappings.
func (m *Mmap) Segments() int {
	return len(m.segments)
}

// Close unmaps every segment.
func (m *Mmap) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.carve.reset(nil)

	var errs []error
	for _, seg := range m.segments {
		if err := unix.Munmap(seg); err != nil && !errors.Is(err, unix.EINVAL) {
			errs = append(errs, err)
		}
	}
	m.segments = nil
	return errors.Join(errs...)
}

// mapLength rounds n up to whole OS pages. Mappings are only OS-page aligned, so
// regions larger than an OS page need one extra region of slack to realign.
func mapLength(n, size int) int {
	osPage := unix.Getpagesize()
	n = (n + osPage - 1) / osPage * osPage
	if size > osPage {
		n += size
	}
	return n
}
