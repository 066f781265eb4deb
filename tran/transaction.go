package tran

import (
	"errors"
	"fmt"

	"github.com/tablekit/tranlog/internal/buf"
	"github.com/tablekit/tranlog/internal/format"
	"github.com/tablekit/tranlog/locktab"
	"github.com/tablekit/tranlog/logfile"
)

type phase int

const (
	phaseOff phase = iota
	phaseActive
	phaseOneDone
)

// Transaction is the engine instance's single unit of work: started by
// Context.Start, fed by RecordWrite/RecordAppend, and terminated by
// phase-two commit or rollback. Its state and id are released on
// termination; the id becomes reusable only then.
type Transaction struct {
	id           int32
	phase        phase
	participants []Table
	joined       map[uint32]Table
}

// ID returns the owning transaction id.
func (t *Transaction) ID() int32 { return t.id }

// Participants returns the tables touched since Start, in insertion order.
func (t *Transaction) Participants() []Table {
	out := make([]Table, len(t.participants))
	copy(out, t.participants)
	return out
}

func (t *Transaction) participates(dataID uint32) bool {
	return t.joined[dataID] != nil
}

// participant returns the live handle the collaborator supplied for
// dataID, or nil when the table never joined this transaction.
func (t *Transaction) participant(dataID uint32) Table {
	return t.joined[dataID]
}

func (t *Transaction) join(tbl Table) {
	if t.joined[tbl.DataID()] != nil {
		return
	}
	t.joined[tbl.DataID()] = tbl
	t.participants = append(t.participants, tbl)
}

func (t *Transaction) reset() {
	t.id = 0
	t.phase = phaseOff
	t.participants = nil
	t.joined = nil
}

// Start opens a transaction and returns its id. Fails with
// ErrAlreadyActive when one is already open on this instance, and with
// ErrDisabled when the subsystem is not enabled.
//
// Start acquires the Multiple lock and holds it until the transaction
// terminates, so exactly one process at a time appends to the shared log;
// the id allocation under that lock is what keeps ids unique among
// concurrently active transactions across processes.
func (c *Context) Start() (int32, error) {
	if c.done {
		return 0, ErrShutdown
	}
	if !c.enabled {
		return 0, ErrDisabled
	}
	if c.status != StatusOff {
		return 0, fmt.Errorf("transaction %d open: %w", c.trans.id, ErrAlreadyActive)
	}

	if err := c.lockBounded(locktab.Multiple); err != nil {
		return 0, err
	}

	// Another process may have started transactions since our last look
	// at the log; re-seed the id high-water from the file.
	if err := c.logFile.Refresh(); err != nil {
		c.unlock(locktab.Multiple)
		return 0, err
	}
	if next := c.logFile.MaxTranID() + 1; next > c.nextID {
		c.nextID = next
	}
	id := c.nextID
	c.nextID++

	h := format.Header{Type: format.EntryStart, ClientID: c.clientID}
	if _, err := c.logFile.Append(h, nil, id); err != nil {
		c.unlock(locktab.Multiple)
		return 0, err
	}

	c.trans = Transaction{
		id:     id,
		phase:  phaseActive,
		joined: make(map[uint32]Table),
	}
	c.status = StatusActive
	c.log.Debug("transaction started", "tran", id)
	return id, nil
}

// writePayload encodes the record number followed by the before-image.
func writePayload(recno uint32, before []byte) []byte {
	p := make([]byte, 4+len(before))
	buf.PutU32(p, 0, recno)
	copy(p[4:], before)
	return p
}

// RecordWrite durably notes an impending record overwrite: the table, the
// record number, and the record's before-image. The collaborator must call
// this before mutating the record while a transaction is active.
func (c *Context) RecordWrite(tbl Table, recno uint32, before []byte) error {
	if err := c.checkRecord(tbl); err != nil {
		return err
	}
	h := format.Header{
		Type:         format.EntryWrite,
		ClientID:     c.clientID,
		ClientDataID: tbl.DataID(),
		ServerDataID: tbl.DataID(),
	}
	if _, err := c.logFile.Append(h, writePayload(recno, before), c.trans.id); err != nil {
		return err
	}
	c.trans.join(tbl)
	return nil
}

// RecordAppend durably notes an impending record append, carrying enough
// identity to truncate the record away on undo.
func (c *Context) RecordAppend(tbl Table, recno uint32) error {
	if err := c.checkRecord(tbl); err != nil {
		return err
	}
	h := format.Header{
		Type:         format.EntryAppend,
		ClientID:     c.clientID,
		ClientDataID: tbl.DataID(),
		ServerDataID: tbl.DataID(),
	}
	if _, err := c.logFile.Append(h, writePayload(recno, nil), c.trans.id); err != nil {
		return err
	}
	c.trans.join(tbl)
	return nil
}

func (c *Context) checkRecord(tbl Table) error {
	if c.done {
		return ErrShutdown
	}
	if tbl == nil {
		return fmt.Errorf("nil table: %w", ErrParameter)
	}
	if c.status != StatusActive || c.trans.phase != phaseActive {
		return ErrNotActive
	}
	return nil
}

// CommitPhaseOne is the durability checkpoint: it appends the commit
// marker and flushes the log with the strongest barrier the platform
// offers. Once it returns nil the transaction's outcome is committed, even
// if the process crashes immediately after; recovery will finish applying
// it, never roll it back.
//
// On failure the transaction stays Active: safe to retry or roll back.
func (c *Context) CommitPhaseOne() error {
	if c.done {
		return ErrShutdown
	}
	if c.status != StatusActive || c.trans.phase != phaseActive {
		return ErrNotActive
	}
	h := format.Header{Type: format.EntryCommitPhaseOne, ClientID: c.clientID}
	if _, err := c.logFile.Append(h, nil, c.trans.id); err != nil {
		return err
	}
	if err := c.logFile.Flush(logfile.FlushFull); err != nil {
		return err
	}
	c.trans.phase = phaseOneDone
	c.log.Debug("commit phase one durable", "tran", c.trans.id)
	return nil
}

// CommitPhaseTwo finalizes a phase-one-committed transaction: flushes the
// participating tables in insertion order, appends the CommitPhaseTwo
// marker, and releases the transaction's state, id, and transaction-scoped
// lock. mode selects
// whether the transaction's log space is marked reclaimable (VoidLog) or
// retained for audit (RetainLog).
//
// A failure here leaves a log that recovery resumes; the transaction is
// already logically committed.
func (c *Context) CommitPhaseTwo(mode ReleaseMode) error {
	if c.done {
		return ErrShutdown
	}
	if c.status != StatusActive {
		return ErrNotActive
	}
	if c.trans.phase != phaseOneDone {
		return ErrNoPhaseOne
	}

	for _, tbl := range c.trans.participants {
		if err := tbl.Flush(); err != nil {
			return fmt.Errorf("flush table %q: %v: %w", tbl.Name(), err, ErrCollaborator)
		}
	}

	id := c.trans.id
	h := format.Header{Type: format.EntryCommitPhaseTwo, ClientID: c.clientID}
	if _, err := c.logFile.Append(h, nil, id); err != nil {
		return err
	}
	if mode == VoidLog {
		vh := format.Header{Type: format.EntryVoid, ClientID: c.clientID}
		if _, err := c.logFile.Append(vh, nil, id); err != nil {
			return err
		}
	}
	if err := c.logFile.Flush(logfile.FlushData); err != nil {
		return err
	}

	c.trans.reset()
	c.status = StatusOff
	c.unlock(locktab.Multiple)
	c.log.Debug("commit phase two complete", "tran", id)
	return nil
}

// Rollback aborts the open transaction, undoing its writes in strict
// reverse chronological order and appending a Rollback marker. Valid only
// before CommitPhaseOne succeeds; afterwards the transaction is committed
// and can only complete (ErrCommitted).
func (c *Context) Rollback() error {
	if c.done {
		return ErrShutdown
	}
	if c.status != StatusActive {
		return ErrNotActive
	}
	if c.trans.phase == phaseOneDone {
		return ErrCommitted
	}

	id := c.trans.id
	c.status = StatusRollback
	if err := c.undo(id, 0); err != nil {
		// Status stays rollback; a recovery pass resumes from the
		// progress marker.
		return err
	}

	h := format.Header{Type: format.EntryRollback, ClientID: c.clientID}
	if _, err := c.logFile.Append(h, nil, id); err != nil {
		return err
	}
	if err := c.logFile.Flush(logfile.FlushData); err != nil {
		return err
	}

	c.trans.reset()
	c.status = StatusOff
	c.unlock(locktab.Multiple)
	c.log.Debug("transaction rolled back", "tran", id)
	return nil
}

// undo walks the log backward from the tail, invoking the undo callback
// for every Write/Append entry owned by tranID, stopping at the matching
// Start marker. Later writes may depend on earlier ones, so the reverse
// order is load-bearing, not cosmetic.
//
// resumeAt carries resume progress: entries above that offset were already
// undone by an interrupted pass and are skipped; the entry at resumeAt is
// the one whose callback failed and is retried. Zero means undo
// everything. When a callback fails, an InitUndo marker recording the
// progress point is appended so the next pass resumes instead of undoing
// the same entries twice.
func (c *Context) undo(tranID int32, resumeAt int64) error {
	var cur logfile.Cursor
	err := c.logFile.Bottom(&cur)
	for err == nil {
		h := cur.Header()
		if h.TranID != tranID {
			err = c.logFile.Skip(&cur, -1)
			continue
		}
		if h.Type == format.EntryStart {
			return nil
		}
		undoable := h.Type == format.EntryWrite || h.Type == format.EntryAppend
		if undoable && (resumeAt == 0 || cur.Offset() <= resumeAt) {
			if err := c.undoEntry(&cur, h); err != nil {
				return err
			}
		}
		err = c.logFile.Skip(&cur, -1)
	}
	if errors.Is(err, logfile.ErrEndOfLog) {
		// Tolerated for logs whose head was compacted away.
		return nil
	}
	return err
}

func (c *Context) undoEntry(cur *logfile.Cursor, h format.Header) error {
	data := cur.Data()
	if len(data) < 4 {
		return fmt.Errorf("entry at %d: short undo payload: %w", cur.Offset(), ErrLogCorrupt)
	}
	recno := buf.U32LE(data)

	// A live rollback undoes through the handle the collaborator supplied
	// to RecordWrite/RecordAppend. Recovery has no live handles and falls
	// back to the registry and resolver.
	tbl := c.trans.participant(h.ServerDataID)
	if tbl == nil {
		var err error
		tbl, err = c.resolveTable(h.ServerDataID)
		if err != nil {
			return c.undoFailed(cur.Offset(), h, err)
		}
	}
	var err error
	switch h.Type {
	case format.EntryWrite:
		err = tbl.Unwrite(recno, data[4:])
	case format.EntryAppend:
		err = tbl.Unappend(recno)
	}
	if err != nil {
		return c.undoFailed(cur.Offset(), h,
			fmt.Errorf("undo %v on %q: %v: %w", h.Type, tbl.Name(), err, ErrCollaborator))
	}
	return nil
}

// undoFailed records how far undo progressed before a collaborator
// failure: every matching entry above the failed entry's offset was
// already undone. The marker lets the next recovery pass resume at the
// failed entry instead of starting over.
func (c *Context) undoFailed(off int64, h format.Header, cause error) error {
	p := make([]byte, 8)
	buf.PutU64(p, 0, uint64(off))
	mh := format.Header{Type: format.EntryInitUndo, ClientID: c.clientID}
	if _, err := c.logFile.Append(mh, p, h.TranID); err != nil {
		c.log.Error("undo progress marker append failed", "tran", h.TranID, "err", err)
	} else if err := c.logFile.Flush(logfile.FlushData); err != nil {
		c.log.Error("undo progress marker flush failed", "tran", h.TranID, "err", err)
	}
	return cause
}
