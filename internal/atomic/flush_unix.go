//go:build linux || freebsd

package atomic

import (
	"os"

	"golang.org/x/sys/unix"
)

// flush pushes file data to disk. fdatasync is enough here: the rename that
// follows publishes the metadata.
func flush(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

// syncDir persists the directory entry created by a rename. Best effort.
func syncDir(dir string) {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return
	}
	_ = unix.Fsync(fd)
	_ = unix.Close(fd)
}
