//go:build windows

package rangelock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

func overlappedAt(off int64) *windows.Overlapped {
	return &windows.Overlapped{
		Offset:     uint32(off),
		OffsetHigh: uint32(off >> 32),
	}
}

// TryLock attempts to acquire an exclusive lock on the byte at off without
// blocking. Returns ErrWouldBlock when another handle holds it.
func TryLock(f *os.File, off int64) error {
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, overlappedAt(off))
	if err != nil {
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return ErrWouldBlock
		}
		return err
	}
	return nil
}

// Lock acquires an exclusive lock on the byte at off, blocking until the
// current holder releases it.
func Lock(f *os.File, off int64) error {
	return windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK,
		0, 1, 0, overlappedAt(off))
}

// Unlock releases the lock on the byte at off.
func Unlock(f *os.File, off int64) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, overlappedAt(off))
}
