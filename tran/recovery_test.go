package tran

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablekit/tranlog/internal/format"
)

// crash abandons a context without the Shutdown marker, the way a process
// death would.
func crash(c *Context) {
	c.logFile.Close()
	c.closeLocks()
	c.done = true
}

func initAt(t *testing.T, path string, tbl *memTable) *Context {
	t.Helper()
	cfg := Config{LogPath: path, SingleUser: true}
	if tbl != nil {
		cfg.ResolveTable = func(dataID uint32) (Table, error) {
			require.Equal(t, tbl.dataID, dataID)
			return tbl, nil
		}
	}
	c, err := Init(cfg)
	require.NoError(t, err)
	return c
}

func TestRecoveryFinishesCommittedTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	tbl := newMemTable(3, "accounts")
	require.NoError(t, tbl.write(nil, 1, []byte("old")))

	c := initAt(t, path, tbl)
	_, err := c.Start()
	require.NoError(t, err)
	require.NoError(t, tbl.write(c, 1, []byte("new")))
	require.NoError(t, c.CommitPhaseOne())
	// Crash after the durability checkpoint, before phase two.
	crash(c)

	c2 := initAt(t, path, tbl)
	defer c2.Shutdown()

	// Recovery must finish applying the transaction, never roll it back.
	assert.Equal(t, []byte("new"), tbl.records[1])
	assert.Equal(t, 1, tbl.flushCalls)
	assert.Contains(t, entryTypes(t, c2), format.EntryCommitPhaseTwo)
}

func TestRecoveryRollsBackUncommitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	tbl := newMemTable(3, "accounts")
	require.NoError(t, tbl.write(nil, 1, []byte(`{id:1,balance:100}`)))

	c := initAt(t, path, tbl)
	_, err := c.Start()
	require.NoError(t, err)
	require.NoError(t, tbl.write(c, 1, []byte(`{id:1,balance:50}`)))
	require.NoError(t, tbl.appendRec(c, 2, []byte(`{id:2,balance:10}`)))
	// Crash before phase one: never durably committed.
	crash(c)

	c2 := initAt(t, path, tbl)
	defer c2.Shutdown()

	assert.Equal(t, []byte(`{id:1,balance:100}`), tbl.records[1])
	_, appended := tbl.records[2]
	assert.False(t, appended)
	assert.Equal(t, 0, tbl.flushCalls)
	assert.Contains(t, entryTypes(t, c2), format.EntryRollback)
}

func TestRecoveryIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	tbl := newMemTable(3, "accounts")
	require.NoError(t, tbl.write(nil, 1, []byte("orig")))

	c := initAt(t, path, tbl)
	_, err := c.Start()
	require.NoError(t, err)
	require.NoError(t, tbl.write(c, 1, []byte("changed")))
	crash(c)

	c2 := initAt(t, path, tbl)
	crash(c2)
	undosAfterFirst := tbl.unwriteCalls[1]
	state := append([]byte(nil), tbl.records[1]...)

	// A second recovery pass yields the same final table state and does
	// not undo anything twice.
	c3 := initAt(t, path, tbl)
	defer c3.Shutdown()
	assert.Equal(t, undosAfterFirst, tbl.unwriteCalls[1])
	assert.Equal(t, state, tbl.records[1])
}

func TestRecoveryMissingTableIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	tbl := newMemTable(3, "accounts")

	c := initAt(t, path, tbl)
	_, err := c.Start()
	require.NoError(t, err)
	require.NoError(t, tbl.write(c, 1, []byte("v")))
	require.NoError(t, c.CommitPhaseOne())
	crash(c)

	// The committed transaction's table cannot be resolved: fatal, no
	// guessed default.
	_, err = Init(Config{LogPath: path, SingleUser: true})
	assert.ErrorIs(t, err, ErrTableUnavailable)
}

func TestRecoveryResumesInterruptedRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	tbl := newMemTable(3, "accounts")
	require.NoError(t, tbl.write(nil, 1, []byte("a1")))
	require.NoError(t, tbl.write(nil, 2, []byte("a2")))

	c := initAt(t, path, tbl)
	_, err := c.Start()
	require.NoError(t, err)
	require.NoError(t, tbl.write(c, 1, []byte("b1")))
	require.NoError(t, tbl.write(c, 2, []byte("b2")))

	// Record 1's undo fails partway through the rollback. Record 2 was
	// already undone by then (reverse order).
	tbl.failUnwrite[1] = true
	err = c.Rollback()
	require.ErrorIs(t, err, ErrCollaborator)
	assert.Equal(t, 1, tbl.unwriteCalls[2])
	crash(c)

	tbl.failUnwrite[1] = false
	c2 := initAt(t, path, tbl)
	defer c2.Shutdown()

	// Resume point: record 2 is not undone a second time, record 1 is
	// retried and restored.
	assert.Equal(t, 1, tbl.unwriteCalls[2])
	assert.Equal(t, 2, tbl.unwriteCalls[1])
	assert.Equal(t, []byte("a1"), tbl.records[1])
	assert.Equal(t, []byte("a2"), tbl.records[2])
}

func TestRecoveryCleanLogIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trans.log")
	tbl := newMemTable(3, "t")

	c := initAt(t, path, tbl)
	_, err := c.Start()
	require.NoError(t, err)
	require.NoError(t, tbl.write(c, 1, []byte("v")))
	require.NoError(t, c.CommitPhaseOne())
	require.NoError(t, c.CommitPhaseTwo(RetainLog))
	require.NoError(t, c.Shutdown())

	c2 := initAt(t, path, nil)
	defer c2.Shutdown()
	assert.Equal(t, 1, tbl.flushCalls)
	assert.NotContains(t, entryTypes(t, c2), format.EntryRollback)
}

