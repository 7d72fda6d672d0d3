//go:build darwin

package source

import "golang.org/x/sys/unix"

// fdatasync performs file descriptor sync.
//
// macOS has no fdatasync. With fullfsync, F_FULLFSYNC pushes data past the
// drive cache; otherwise plain fsync is used.
func fdatasync(fd int, fullfsync bool) error {
	if fullfsync {
		_, err := unix.FcntlInt(uintptr(fd), unix.F_FULLFSYNC, 0)
		return err
	}
	return unix.Fsync(fd)
}
