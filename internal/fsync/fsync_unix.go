//go:build linux || freebsd

package fsync

import (
	"os"

	"golang.org/x/sys/unix"
)

// Datasync flushes file data to stable storage.
//
// On Linux/FreeBSD, fdatasync() provides sufficient guarantees for log
// durability: data and the file size reach the disk, unrelated metadata
// may not.
func Datasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

// Full flushes file data and metadata with the strongest guarantee the
// platform offers. On Linux/FreeBSD this is fsync().
func Full(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
