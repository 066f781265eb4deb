//go:build darwin

package fsync

import (
	"os"

	"golang.org/x/sys/unix"
)

// Datasync flushes file data to stable storage.
//
// macOS has no fdatasync; plain fsync() only pushes data to the drive
// cache, which is the comparable durability level.
func Datasync(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}

// Full flushes with F_FULLFSYNC, forcing write-through to the physical
// disk rather than the drive cache. Required for power-loss durability
// on macOS.
func Full(f *os.File) error {
	_, err := unix.FcntlInt(f.Fd(), unix.F_FULLFSYNC, 0)
	return err
}
