package tran

import (
	"errors"
	"fmt"

	"github.com/tablekit/tranlog/internal/buf"
	"github.com/tablekit/tranlog/internal/format"
	"github.com/tablekit/tranlog/logfile"
)

// recover runs once at Init, on whatever log a prior session left behind.
// Physically torn tail entries were already discarded by logfile.Open.
//
// For every Start marker with no terminal marker for its id:
//   - a CommitPhaseOne marker means the transaction is durably committed
//     but unfinalized: the phase-two application step reruns against the
//     participating tables reconstructed from the log, then a synthetic
//     CommitPhaseTwo marker is appended;
//   - no CommitPhaseOne marker means it never committed: the same
//     backward undo as Rollback runs (honoring any undo progress marker
//     an interrupted pass recorded), then a synthetic Rollback marker is
//     appended.
//
// Either way the procedure is idempotent: a second pass over the repaired
// log finds nothing to do.
func (c *Context) recover() error {
	if c.logFile.Entries() == 0 {
		return nil
	}

	terminated := make(map[int32]bool)
	phaseOne := make(map[int32]bool)
	resume := make(map[int32]int64)
	started := make(map[int32]bool)
	var open []int32 // most recent first

	var cur logfile.Cursor
	err := c.logFile.Bottom(&cur)
	for err == nil {
		h := cur.Header()
		if h.TranID != 0 {
			switch h.Type {
			case format.EntryCommitPhaseTwo, format.EntryRollback:
				terminated[h.TranID] = true
			case format.EntryCommitPhaseOne:
				if !terminated[h.TranID] {
					phaseOne[h.TranID] = true
				}
			case format.EntryInitUndo:
				// Scanning backward, the first marker seen is the most
				// recent progress point.
				if _, ok := resume[h.TranID]; !ok {
					resume[h.TranID] = int64(buf.U64LE(cur.Data()))
				}
			case format.EntryStart:
				if !terminated[h.TranID] && !started[h.TranID] {
					started[h.TranID] = true
					open = append(open, h.TranID)
				}
			}
		}
		err = c.logFile.Skip(&cur, -1)
	}
	if !errors.Is(err, logfile.ErrEndOfLog) {
		return err
	}

	for _, id := range open {
		if phaseOne[id] {
			if err := c.redoCommit(id); err != nil {
				return err
			}
		} else {
			if err := c.redoRollback(id, resume[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

// redoCommit finishes the phase-two application for a transaction the
// prior session committed durably but never finalized. A participating
// table that cannot be resolved is fatal (ErrTableUnavailable); guessing a
// default would break the commitment phase one made.
func (c *Context) redoCommit(id int32) error {
	c.log.Info("recovery: finishing committed transaction", "tran", id)

	for _, dataID := range c.participantsFromLog(id) {
		tbl, err := c.resolveTable(dataID)
		if err != nil {
			return fmt.Errorf("recover transaction %d: %w", id, err)
		}
		if err := tbl.Flush(); err != nil {
			return fmt.Errorf("recover transaction %d: flush table %q: %v: %w",
				id, tbl.Name(), err, ErrCollaborator)
		}
	}

	h := format.Header{Type: format.EntryCommitPhaseTwo, ClientID: c.clientID, TranID: id}
	if _, err := c.logFile.Append(h, nil, logfile.UseHeaderTranID); err != nil {
		return err
	}
	return c.logFile.Flush(logfile.FlushFull)
}

// redoRollback undoes a transaction the prior session never committed,
// resuming from any recorded undo progress point.
func (c *Context) redoRollback(id int32, resumeAt int64) error {
	if resumeAt != 0 {
		c.log.Info("recovery: resuming interrupted rollback", "tran", id, "resumeAt", resumeAt)
	} else {
		c.log.Info("recovery: rolling back uncommitted transaction", "tran", id)
	}

	prev := c.status
	c.status = StatusRollback
	err := c.undo(id, resumeAt)
	c.status = prev
	if err != nil {
		return fmt.Errorf("recover transaction %d: %w", id, err)
	}

	h := format.Header{Type: format.EntryRollback, ClientID: c.clientID, TranID: id}
	if _, err := c.logFile.Append(h, nil, logfile.UseHeaderTranID); err != nil {
		return err
	}
	return c.logFile.Flush(logfile.FlushFull)
}

// participantsFromLog reconstructs the insertion-ordered participating
// table set of a transaction from its Write/Append entries.
func (c *Context) participantsFromLog(id int32) []uint32 {
	var order []uint32
	seen := make(map[uint32]bool)

	var cur logfile.Cursor
	err := c.logFile.Top(&cur)
	for err == nil {
		h := cur.Header()
		if h.TranID == id && (h.Type == format.EntryWrite || h.Type == format.EntryAppend) {
			if !seen[h.ServerDataID] {
				seen[h.ServerDataID] = true
				order = append(order, h.ServerDataID)
			}
		}
		err = c.logFile.Skip(&cur, 1)
	}
	return order
}
