//go:build unix

package source

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File carves regions out of shared mappings of a backing file. Each new
// segment extends the file and maps the extension, so the file always holds
// every page ever handed out. Sync writes dirty pages back to disk.
type File struct {
	f           *os.File
	segmentSize int
	size        int64
	carve       carver
	segments    [][]byte
	fullSync    bool
	closed      bool
}

// FileOptions configures a file-backed source.
type FileOptions struct {
	// SegmentSize is the number of bytes mapped per file extension (0 = DefaultSegmentSize).
	SegmentSize int

	// FullSync requests the strongest durability the platform offers on Sync
	// (F_FULLFSYNC on macOS). Ignored elsewhere.
	FullSync bool
}

// OpenFile creates (or truncates) the file at path and returns a source backed by it.
func OpenFile(path string, opts FileOptions) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	return &File{
		f:           f,
		segmentSize: opts.SegmentSize,
		fullSync:    opts.FullSync,
	}, nil
}

// Acquire implements Source.
func (fs *File) Acquire(size int) ([]byte, error) {
	if fs.closed {
		return nil, ErrClosed
	}
	if !validSize(size) {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}

	if region := fs.carve.take(size); region != nil {
		return region, nil
	}

	n := mapLength(segmentBytes(fs.segmentSize, size), size)
	off := fs.size
	fd := int(fs.f.Fd())

	if err := unix.Ftruncate(fd, off+int64(n)); err != nil {
		return nil, fmt.Errorf("%w: extend %s to %d bytes: %w", ErrExhausted, fs.f.Name(), off+int64(n), err)
	}
	seg, err := unix.Mmap(fd, off, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		// Leave the file at its previous length.
		_ = unix.Ftruncate(fd, off)
		return nil, fmt.Errorf("%w: mmap %s at %d: %w", ErrExhausted, fs.f.Name(), off, err)
	}

	fs.size += int64(n)
	fs.segments = append(fs.segments, seg)
	fs.carve.reset(seg)
	return fs.carve.take(size), nil
}

// Path returns the name of the backing file.
func (fs *File) Path() string {
	return fs.f.Name()
}

// Size returns the current length of the backing file.
func (fs *File) Size() int64 {
	return fs.size
}

// Sync flushes every mapped segment and then the file itself.
func (fs *File) Sync() error {
	if fs.closed {
		return ErrClosed
	}
	for _, seg := range fs.segments {
		if err := msync(seg); err != nil {
			return fmt.Errorf("source: msync %s: %w", fs.f.Name(), err)
		}
	}
	return fdatasync(int(fs.f.Fd()), fs.fullSync)
}

// Close unmaps every segment and closes the file. Data already written through
// the mappings stays in the file; call Sync first for durability.
func (fs *File) Close() error {
	if fs.closed {
		return nil
	}
	fs.closed = true
	fs.carve.reset(nil)

	var errs []error
	for _, seg := range fs.segments {
		if err := unix.Munmap(seg); err != nil && !errors.Is(err, unix.EINVAL) {
			errs = append(errs, err)
		}
	}
	fs.segments = nil
	errs = append(errs, fs.f.Close())
	return errors.Join(errs...)
}

// msync flushes a mapped segment to disk.
func msync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}
