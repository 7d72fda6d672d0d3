//go:build linux || freebsd

package source

import "golang.org/x/sys/unix"

// fdatasync performs file descriptor sync.
//
// On Linux/FreeBSD, fdatasync() provides sufficient guarantees.
// The fullfsync parameter is ignored.
func fdatasync(fd int, _ bool) error {
	return unix.Fdatasync(fd)
}
