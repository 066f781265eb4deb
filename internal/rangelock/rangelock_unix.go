//go:build linux || darwin

package rangelock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func flockAt(lockType int16, off int64) *unix.Flock_t {
	return &unix.Flock_t{
		Type:   lockType,
		Whence: int16(unix.SEEK_SET),
		Start:  off,
		Len:    1,
	}
}

// TryLock attempts to acquire an exclusive lock on the byte at off without
// blocking. Returns ErrWouldBlock when another open file description holds it.
func TryLock(f *os.File, off int64) error {
	err := unix.FcntlFlock(f.Fd(), unix.F_OFD_SETLK, flockAt(unix.F_WRLCK, off))
	if err != nil {
		// POSIX allows either errno for a held lock.
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
			return ErrWouldBlock
		}
		return err
	}
	return nil
}

// Lock acquires an exclusive lock on the byte at off, blocking the calling
// thread at the OS primitive until the current holder releases it.
func Lock(f *os.File, off int64) error {
	return unix.FcntlFlock(f.Fd(), unix.F_OFD_SETLKW, flockAt(unix.F_WRLCK, off))
}

// Unlock releases the lock on the byte at off.
func Unlock(f *os.File, off int64) error {
	return unix.FcntlFlock(f.Fd(), unix.F_OFD_SETLK, flockAt(unix.F_UNLCK, off))
}
