// Package recovery holds end-to-end crash and restart scenarios that
// exercise the transaction log through the real table implementation.
package recovery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablekit/tranlog/table"
	"github.com/tablekit/tranlog/tran"
)

const recLen = 32

// setup creates a fresh table with two account records and a bound
// single-user transaction context next to it.
func setup(t *testing.T) (string, *tran.Context, *table.Table) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "accounts.tlog")

	tbl, err := table.Create(filepath.Join(dir, "accounts.rtbl"), recLen, table.CodepageANSI)
	require.NoError(t, err)

	c, err := tran.Init(tran.Config{LogPath: logPath, SingleUser: true})
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(c))

	_, err = tbl.AppendString("id:1,balance:100")
	require.NoError(t, err)
	_, err = tbl.AppendString("id:2,balance:200")
	require.NoError(t, err)
	require.NoError(t, tbl.Flush())
	return dir, c, tbl
}

// reopen simulates a process restart: it opens fresh handles on the table
// and log, letting Init replay whatever the previous "process" left behind.
func reopen(t *testing.T, dir string) (*tran.Context, *table.Table) {
	t.Helper()
	tbl, err := table.Open(filepath.Join(dir, "accounts.rtbl"))
	require.NoError(t, err)
	c, err := tran.Init(tran.Config{
		LogPath:    filepath.Join(dir, "accounts.tlog"),
		SingleUser: true,
		ResolveTable: func(dataID uint32) (tran.Table, error) {
			if dataID != tbl.DataID() {
				return nil, tran.ErrTableUnavailable
			}
			return tbl, nil
		},
	})
	require.NoError(t, err)
	return c, tbl
}

// crash abandons the context without a Shutdown marker and drops the log
// handle, the closest a test can get to the process dying mid-flight.
func crash(t *testing.T, c *tran.Context) {
	t.Helper()
	require.NoError(t, c.Log().Close())
}

func TestRestartCompletesCommittedTransaction(t *testing.T) {
	dir, c, tbl := setup(t)

	_, err := c.Start()
	require.NoError(t, err)
	require.NoError(t, tbl.WriteString(1, "id:1,balance:50"))
	_, err = tbl.AppendString("id:3,balance:10")
	require.NoError(t, err)
	require.NoError(t, c.CommitPhaseOne())
	crash(t, c)

	c2, tbl2 := reopen(t, dir)
	defer c2.Shutdown()
	defer tbl2.Close()

	require.EqualValues(t, 3, tbl2.Count())
	got, err := tbl2.ReadString(1)
	require.NoError(t, err)
	require.Equal(t, "id:1,balance:50", got)
	got, err = tbl2.ReadString(3)
	require.NoError(t, err)
	require.Equal(t, "id:3,balance:10", got)
}

func TestRestartUndoesUncommittedTransaction(t *testing.T) {
	dir, c, tbl := setup(t)

	_, err := c.Start()
	require.NoError(t, err)
	require.NoError(t, tbl.WriteString(1, "id:1,balance:50"))
	_, err = tbl.AppendString("id:3,balance:10")
	require.NoError(t, err)
	crash(t, c) // died before the first commit phase

	c2, tbl2 := reopen(t, dir)
	defer c2.Shutdown()
	defer tbl2.Close()

	require.EqualValues(t, 2, tbl2.Count())
	got, err := tbl2.ReadString(1)
	require.NoError(t, err)
	require.Equal(t, "id:1,balance:100", got)
	got, err = tbl2.ReadString(2)
	require.NoError(t, err)
	require.Equal(t, "id:2,balance:200", got)
}

func TestRestartTwiceMatchesRestartOnce(t *testing.T) {
	dir, c, tbl := setup(t)

	_, err := c.Start()
	require.NoError(t, err)
	require.NoError(t, tbl.WriteString(2, "id:2,balance:0"))
	crash(t, c)

	c2, _ := reopen(t, dir)
	crash(t, c2)

	c3, tbl3 := reopen(t, dir)
	defer c3.Shutdown()
	defer tbl3.Close()

	require.EqualValues(t, 2, tbl3.Count())
	got, err := tbl3.ReadString(2)
	require.NoError(t, err)
	require.Equal(t, "id:2,balance:200", got)
}

func TestRestartAfterCleanShutdownIsQuiet(t *testing.T) {
	dir, c, tbl := setup(t)
	require.NoError(t, tbl.Close())
	require.NoError(t, c.Shutdown())

	c2, tbl2 := reopen(t, dir)
	defer c2.Shutdown()
	defer tbl2.Close()

	require.EqualValues(t, 2, tbl2.Count())
	got, err := tbl2.ReadString(1)
	require.NoError(t, err)
	require.Equal(t, "id:1,balance:100", got)
}
