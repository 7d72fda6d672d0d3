//go:build !unix

package source

import (
	"errors"
	"fmt"
	"runtime"
)

// File is not available on this platform.
type File struct{}

// FileOptions configures a file-backed source.
type FileOptions struct {
	SegmentSize int
	FullSync    bool
}

// OpenFile reports that file-backed sources need a unix platform.
func OpenFile(path string, _ FileOptions) (*File, error) {
	return nil, fmt.Errorf("source: file source for %s: %w on %s", path, errors.ErrUnsupported, runtime.GOOS)
}

// Acquire implements Source.
func (*File) Acquire(int) ([]byte, error) { return nil, ErrClosed }

// Sync is a no-op.
func (*File) Sync() error { return nil }

// Close is a no-op.
func (*File) Close() error { return nil }
