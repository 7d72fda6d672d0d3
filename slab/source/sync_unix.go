//go:build unix && !linux && !freebsd && !darwin

package source

import "golang.org/x/sys/unix"

// fdatasync falls back to fsync on the remaining unix platforms.
func fdatasync(fd int, _ bool) error {
	return unix.Fsync(fd)
}
