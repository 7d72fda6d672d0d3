//go:build unix

package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMmap_AlignedRegions(t *testing.T) {
	for _, size := range []int{128, 4096, 65536} {
		m := NewMmap(0)
		checkRegions(t, m, size, 50)
		require.NoError(t, m.Close())
	}
}

func TestMmap_LargerThanOSPage(t *testing.T) {
	size := unix.Getpagesize() * 4
	m := NewMmap(size)
	checkRegions(t, m, size, 4)
	// A mapping that happens to be aligned can hold two regions.
	assert.LessOrEqual(t, m.Segments(), 4)
	require.NoError(t, m.Close())
}

func TestMmap_CloseTwice(t *testing.T) {
	m := NewMmap(0)
	_, err := m.Acquire(4096)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Acquire(4096)
	require.ErrorIs(t, err, ErrClosed)
}

func TestFile_WritesReachDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.bin")
	fs, err := OpenFile(path, FileOptions{SegmentSize: 8192})
	require.NoError(t, err)

	regions := checkRegions(t, fs, 4096, 3)
	copy(regions[0][16:], "first page")
	copy(regions[2][16:], "third page")

	require.NoError(t, fs.Sync())
	assert.Equal(t, path, fs.Path())
	assert.GreaterOrEqual(t, fs.Size(), int64(3*4096))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, int(fs.Size()))
	assert.Contains(t, string(data), "first page")
	assert.Contains(t, string(data), "third page")

	require.NoError(t, fs.Close())
	_, err = fs.Acquire(4096)
	require.ErrorIs(t, err, ErrClosed)
}

func TestFile_SmallPages(t *testing.T) {
	fs, err := OpenFile(filepath.Join(t.TempDir(), "small.bin"), FileOptions{})
	require.NoError(t, err)
	defer fs.Close()

	checkRegions(t, fs, 128, 300)
}
