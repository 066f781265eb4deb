//go:build linux || darwin

package rangelock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTwice(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl")

	a, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	b, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return a, b
}

func TestTryLockConflictsAcrossDescriptions(t *testing.T) {
	a, b := openTwice(t)

	require.NoError(t, TryLock(a, 5))

	// Open-file-description locks conflict even within one process.
	err := TryLock(b, 5)
	require.ErrorIs(t, err, ErrWouldBlock)

	// A different offset is free.
	require.NoError(t, TryLock(b, 6))

	require.NoError(t, Unlock(a, 5))
	require.NoError(t, TryLock(b, 5))
}

func TestLockBlocksUntilRelease(t *testing.T) {
	a, b := openTwice(t)

	require.NoError(t, TryLock(a, 0))

	acquired := make(chan error, 1)
	go func() {
		acquired <- Lock(b, 0)
	}()

	require.NoError(t, Unlock(a, 0))
	require.NoError(t, <-acquired)
	require.NoError(t, Unlock(b, 0))
}
