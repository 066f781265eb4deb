package logfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablekit/tranlog/internal/format"
)

func newLog(t *testing.T) *LogFile {
	t.Helper()
	l, err := Create(filepath.Join(t.TempDir(), "trans.log"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func appendN(t *testing.T, l *LogFile, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		h := format.Header{
			Type:         format.EntryWrite,
			ClientID:     1,
			ServerDataID: uint32(i),
		}
		_, err := l.Append(h, []byte{byte(i), byte(i + 1)}, int32(i+1))
		require.NoError(t, err)
	}
}

func TestCreateRejectsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	l, err := Create(path)
	require.NoError(t, err)
	l.Close()

	_, err = Create(path)
	assert.Error(t, err)
}

func TestOpenRejectsBadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	l, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[format.FileVersionOffset] = 9
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Open(path)
	assert.ErrorIs(t, err, format.ErrVersionMismatch)
}

func TestAppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	l, err := Create(path)
	require.NoError(t, err)
	appendN(t, l, 5)
	require.NoError(t, l.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	assert.Equal(t, 5, l2.Entries())
	assert.Equal(t, int32(5), l2.MaxTranID())
	assert.Equal(t, uint16(format.VersionNum), l2.Version())
}

func TestNavigationRoundTrip(t *testing.T) {
	l := newLog(t)
	const n = 7
	appendN(t, l, n)

	var cur Cursor
	forward := make([]int32, 0, n)
	require.NoError(t, l.Top(&cur))
	forward = append(forward, cur.TranID())
	for {
		err := l.Skip(&cur, 1)
		if err == ErrEndOfLog {
			break
		}
		require.NoError(t, err)
		forward = append(forward, cur.TranID())
	}
	require.Len(t, forward, n)
	assert.False(t, cur.Valid())

	backward := make([]int32, 0, n)
	require.NoError(t, l.Bottom(&cur))
	backward = append(backward, cur.TranID())
	for {
		err := l.Skip(&cur, -1)
		if err == ErrEndOfLog {
			break
		}
		require.NoError(t, err)
		backward = append(backward, cur.TranID())
	}
	require.Len(t, backward, n)

	for i := 0; i < n; i++ {
		assert.Equal(t, forward[i], backward[n-1-i])
	}
}

func TestSkipMultiple(t *testing.T) {
	l := newLog(t)
	appendN(t, l, 5)

	var cur Cursor
	require.NoError(t, l.Top(&cur))
	require.NoError(t, l.Skip(&cur, 3))
	assert.Equal(t, int32(4), cur.TranID())
	require.NoError(t, l.Skip(&cur, -2))
	assert.Equal(t, int32(2), cur.TranID())
}

func TestEmptyLogNavigation(t *testing.T) {
	l := newLog(t)

	var cur Cursor
	assert.ErrorIs(t, l.Top(&cur), ErrEndOfLog)
	assert.False(t, cur.Valid())
	assert.ErrorIs(t, l.Bottom(&cur), ErrEndOfLog)
	assert.ErrorIs(t, l.Skip(&cur, 1), ErrEndOfLog)
}

func TestTornTailTruncatedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	l, err := Create(path)
	require.NoError(t, err)
	appendN(t, l, 3)
	goodSize := l.Size()
	_, err = l.Append(format.Header{Type: format.EntryWrite}, []byte("partial"), 4)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// Cut the last entry short, as a crash mid-append would.
	require.NoError(t, os.Truncate(path, goodSize+int64(format.HeaderSize)+3))

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	assert.Equal(t, 3, l2.Entries())
	assert.Equal(t, goodSize, l2.Size())

	var cur Cursor
	require.NoError(t, l2.Bottom(&cur))
	assert.Equal(t, int32(3), cur.TranID())
}

func TestInteriorCorruptionIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	l, err := Create(path)
	require.NoError(t, err)
	appendN(t, l, 3)
	require.NoError(t, l.Close())

	// Smash the first entry's trailer. Later entries are intact, so this
	// is interior corruption, not a torn tail.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	trailerOff := format.FileHeaderSize + format.HeaderSize + 2
	raw[trailerOff] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Open(path)
	assert.ErrorIs(t, err, format.ErrLengthMismatch)
}

func TestAppendOverridesTranID(t *testing.T) {
	l := newLog(t)

	h := format.Header{Type: format.EntryStart, TranID: 9}
	_, err := l.Append(h, nil, 42)
	require.NoError(t, err)
	_, err = l.Append(h, nil, UseHeaderTranID)
	require.NoError(t, err)

	var cur Cursor
	require.NoError(t, l.Top(&cur))
	assert.Equal(t, int32(42), cur.TranID())
	require.NoError(t, l.Skip(&cur, 1))
	assert.Equal(t, int32(9), cur.TranID())
}

func TestRewriteKeepsSelected(t *testing.T) {
	l := newLog(t)
	appendN(t, l, 6)

	err := l.Rewrite(func(h format.Header, _ []byte) bool {
		return h.TranID%2 == 0
	})
	require.NoError(t, err)
	assert.Equal(t, 3, l.Entries())

	var cur Cursor
	require.NoError(t, l.Top(&cur))
	assert.Equal(t, int32(2), cur.TranID())
	require.NoError(t, l.Skip(&cur, 2))
	assert.Equal(t, int32(6), cur.TranID())
}

func TestReset(t *testing.T) {
	l := newLog(t)
	appendN(t, l, 4)

	require.NoError(t, l.Reset())
	assert.Equal(t, 0, l.Entries())

	var cur Cursor
	assert.ErrorIs(t, l.Top(&cur), ErrEndOfLog)

	// The log stays usable after a reset.
	_, err := l.Append(format.Header{Type: format.EntryZap}, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Entries())
}

func TestFlushModes(t *testing.T) {
	l := newLog(t)
	appendN(t, l, 1)
	require.NoError(t, l.Flush(FlushData))
	// Second flush with nothing new appended is a no-op.
	require.NoError(t, l.Flush(FlushFull))
}

func TestClosedOperationsFail(t *testing.T) {
	l, err := Create(filepath.Join(t.TempDir(), "trans.log"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Append(format.Header{Type: format.EntryWrite}, nil, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, l.Flush(FlushData), ErrClosed)
	var cur Cursor
	assert.ErrorIs(t, l.Top(&cur), ErrClosed)
	assert.ErrorIs(t, l.Close(), ErrClosed)
}
