package tran

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tablekit/tranlog/internal/format"
	"github.com/tablekit/tranlog/locktab"
	"github.com/tablekit/tranlog/logfile"
)

// Config configures an engine instance.
type Config struct {
	// LogPath is the transaction log file. Created when absent; an
	// existing log is recovered on open.
	LogPath string

	// LockPath is the lock control file shared by cooperating processes.
	// Defaults to LogPath + ".lck".
	LockPath string

	// SingleUser skips the lock table entirely and relies on the
	// single-process assumption.
	SingleUser bool

	// ResolveTable maps a server data id from the log back to a live
	// table during recovery. Tables registered with RegisterTable are
	// consulted first.
	ResolveTable func(serverDataID uint32) (Table, error)

	// LockAttempts bounds the delay-and-retry loop for bounded lock
	// acquisitions. Defaults to 10.
	LockAttempts int

	// LockDelay is the fixed sleep between lock attempts. Defaults to
	// 100ms.
	LockDelay time.Duration

	// Logger receives structured diagnostics. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// Context is one engine instance's transaction state: whether transactions
// are enabled, the current status, and the single active transaction. It
// owns the log file handle and the lock table handle.
//
// A Context is not safe for concurrent use within a process; concurrency
// across processes is serialized by the lock table.
type Context struct {
	cfg Config
	log *slog.Logger

	logFile *logfile.LogFile
	locks   *locktab.Table // nil in single-user mode

	clientID int32
	enabled  bool
	status   Status
	trans    Transaction
	nextID   int32
	tables   map[uint32]Table
	done     bool
}

// Init initializes the transaction subsystem: opens (or creates) the log
// file, runs recovery on anything a prior session left behind, claims a
// user slot, and appends an Init marker. The instance must be torn down
// with exactly one Shutdown call.
func Init(cfg Config) (*Context, error) {
	if cfg.LogPath == "" {
		return nil, fmt.Errorf("log path empty: %w", ErrParameter)
	}
	if cfg.LockPath == "" {
		cfg.LockPath = cfg.LogPath + ".lck"
	}
	if cfg.LockAttempts <= 0 {
		cfg.LockAttempts = 10
	}
	if cfg.LockDelay <= 0 {
		cfg.LockDelay = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Context{
		cfg:    cfg,
		log:    cfg.Logger,
		tables: make(map[uint32]Table),
	}

	if !cfg.SingleUser {
		locks, err := locktab.Open(cfg.LockPath)
		if err != nil {
			return nil, err
		}
		slot, err := locks.AcquireUserSlot()
		if err != nil {
			locks.Close()
			return nil, err
		}
		c.locks = locks
		c.clientID = int32(slot)
	}

	l, err := openOrCreateLog(cfg.LogPath)
	if err != nil {
		c.closeLocks()
		return nil, err
	}
	c.logFile = l

	if err := c.lockBounded(locktab.Multiple); err != nil {
		l.Close()
		c.closeLocks()
		return nil, err
	}
	err = c.recover()
	if err == nil {
		_, err = c.appendAdmin(format.EntryInit, nil)
	}
	c.unlock(locktab.Multiple)
	if err != nil {
		l.Close()
		c.closeLocks()
		return nil, err
	}
	c.nextID = l.MaxTranID() + 1

	c.enabled = true
	c.log.Debug("transaction subsystem initialized",
		"log", cfg.LogPath, "client", c.clientID, "nextTran", c.nextID)
	return c, nil
}

func openOrCreateLog(path string) (*logfile.LogFile, error) {
	l, err := logfile.Open(path)
	if err == nil {
		return l, nil
	}
	if l, cerr := logfile.Create(path); cerr == nil {
		return l, nil
	}
	return nil, err
}

// Shutdown appends a Shutdown marker, releases the user slot, and closes
// the log and lock files. It must be called exactly once; further calls
// and any later operation return ErrShutdown.
func (c *Context) Shutdown() error {
	if c.done {
		return ErrShutdown
	}
	if c.status != StatusOff {
		return fmt.Errorf("transaction %d still open: %w", c.trans.id, ErrAlreadyActive)
	}
	c.done = true
	c.enabled = false

	_, appendErr := c.appendShared(format.EntryShutdown, nil)
	flushErr := c.logFile.Flush(logfile.FlushData)
	closeErr := c.logFile.Close()
	lockErr := c.closeLocks()

	for _, err := range []error{appendErr, flushErr, closeErr, lockErr} {
		if err != nil {
			return err
		}
	}
	c.log.Debug("transaction subsystem shut down", "client", c.clientID)
	return nil
}

func (c *Context) closeLocks() error {
	if c.locks == nil {
		return nil
	}
	err := c.locks.Close()
	c.locks = nil
	return err
}

// Status returns the instance's current transaction status.
func (c *Context) Status() Status { return c.status }

// Enabled reports whether the transaction subsystem is initialized and not
// shut down.
func (c *Context) Enabled() bool { return c.enabled && !c.done }

// InTransaction reports whether a transaction is open and table writes
// should be routed through RecordWrite/RecordAppend.
func (c *Context) InTransaction() bool {
	return c.Enabled() && c.status == StatusActive
}

// ClientID returns the small per-session id claimed from the lock table's
// user slots (0 in single-user mode).
func (c *Context) ClientID() int32 { return c.clientID }

// Transaction returns the active transaction, or nil when status is off.
func (c *Context) Transaction() *Transaction {
	if c.status == StatusOff {
		return nil
	}
	return &c.trans
}

// Log exposes the underlying log file for diagnostic iteration.
func (c *Context) Log() *logfile.LogFile { return c.logFile }

// RegisterTable makes a table known to this instance for recovery
// resolution and appends an Open marker for it.
func (c *Context) RegisterTable(t Table) error {
	if c.done {
		return ErrShutdown
	}
	if t == nil {
		return fmt.Errorf("nil table: %w", ErrParameter)
	}
	if _, ok := c.tables[t.DataID()]; ok {
		return nil
	}
	c.tables[t.DataID()] = t
	_, err := c.appendShared(format.EntryOpen, nil, withTable(t))
	return err
}

// UnregisterTable forgets a table and appends a Close marker. Fails while
// the table participates in the open transaction.
func (c *Context) UnregisterTable(t Table) error {
	if c.done {
		return ErrShutdown
	}
	if t == nil {
		return fmt.Errorf("nil table: %w", ErrParameter)
	}
	if c.status != StatusOff && c.trans.participates(t.DataID()) {
		return fmt.Errorf("table %q in open transaction: %w", t.Name(), ErrAlreadyActive)
	}
	if _, ok := c.tables[t.DataID()]; !ok {
		return nil
	}
	delete(c.tables, t.DataID())
	_, err := c.appendShared(format.EntryClose, nil, withTable(t))
	return err
}

// Active reports whether t participates in the currently open transaction.
func (c *Context) Active(t Table) bool {
	return t != nil && c.status != StatusOff && c.trans.participates(t.DataID())
}

// resolveTable finds the live table for a server data id recorded in the
// log, consulting registered tables first, then the configured resolver.
func (c *Context) resolveTable(serverDataID uint32) (Table, error) {
	if t, ok := c.tables[serverDataID]; ok {
		return t, nil
	}
	if c.cfg.ResolveTable != nil {
		t, err := c.cfg.ResolveTable(serverDataID)
		if err != nil {
			return nil, fmt.Errorf("table %d: %v: %w", serverDataID, err, ErrTableUnavailable)
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("table %d: %w", serverDataID, ErrTableUnavailable)
}

type appendOpt func(*format.Header)

func withTable(t Table) appendOpt {
	return func(h *format.Header) {
		h.ClientDataID = t.DataID()
		h.ServerDataID = t.DataID()
	}
}

// appendAdmin writes an administrative entry (transaction id 0). The
// caller must already hold the Multiple lock, or be single-user.
func (c *Context) appendAdmin(typ format.EntryType, payload []byte, opts ...appendOpt) (int64, error) {
	h := format.Header{Type: typ, ClientID: c.clientID}
	for _, opt := range opts {
		opt(&h)
	}
	return c.logFile.Append(h, payload, 0)
}

// appendShared appends an administrative entry with the log tail
// serialized against other processes. Only the holder of the Multiple
// lock may append, so when it is not already held (no open transaction)
// it is taken for the duration of the append, with a refresh to pick up
// appends other processes made in the meantime.
func (c *Context) appendShared(typ format.EntryType, payload []byte, opts ...appendOpt) (int64, error) {
	if c.locks != nil && !c.locks.Held(locktab.Multiple) {
		if err := c.lockBounded(locktab.Multiple); err != nil {
			return 0, err
		}
		defer c.unlock(locktab.Multiple)
		if err := c.logFile.Refresh(); err != nil {
			return 0, err
		}
	}
	return c.appendAdmin(typ, payload, opts...)
}

// lockBounded acquires id with the configured fixed delay-and-retry loop.
// A no-op in single-user mode.
func (c *Context) lockBounded(id locktab.ID) error {
	if c.locks == nil {
		return nil
	}
	return c.locks.Lock(id, c.cfg.LockAttempts, c.cfg.LockDelay)
}

func (c *Context) unlock(id locktab.ID) {
	if c.locks == nil {
		return
	}
	if err := c.locks.Unlock(id); err != nil {
		c.log.Warn("unlock failed", "id", id.String(), "err", err)
	}
}

// LockTransactions acquires one of the reserved lock identifiers with the
// configured bounded retry loop. Exposed for hosts coordinating backup,
// restore, and repair tooling.
func (c *Context) LockTransactions(id locktab.ID) error {
	if c.done {
		return ErrShutdown
	}
	return c.lockBounded(id)
}

// UnlockTransactions releases a reserved lock identifier.
func (c *Context) UnlockTransactions(id locktab.ID) error {
	if c.done {
		return ErrShutdown
	}
	if c.locks == nil {
		return nil
	}
	return c.locks.Unlock(id)
}

// CompactLog reclaims log space held by terminated transactions, keeping
// entries of any transaction that is still unterminated in the file. Valid
// only with no open transaction, and only while this is the sole process
// with the log open: compaction replaces the file, and other processes'
// handles would keep the old one. The Multiple lock is held so no
// transaction starts mid-compaction.
func (c *Context) CompactLog() error {
	if c.done {
		return ErrShutdown
	}
	if c.status != StatusOff {
		return fmt.Errorf("compact with open transaction: %w", ErrAlreadyActive)
	}
	if err := c.lockBounded(locktab.Multiple); err != nil {
		return err
	}
	defer c.unlock(locktab.Multiple)

	if err := c.logFile.Refresh(); err != nil {
		return err
	}
	live, err := c.unterminated()
	if err != nil {
		return err
	}
	if err := c.logFile.Rewrite(func(h format.Header, _ []byte) bool {
		return h.TranID != 0 && live[h.TranID]
	}); err != nil {
		return err
	}
	if _, err := c.appendAdmin(format.EntryPack, nil); err != nil {
		return err
	}
	c.log.Info("log compacted", "entries", c.logFile.Entries())
	return c.logFile.Flush(logfile.FlushData)
}

// ResetLog discards the log entirely, leaving an empty file with a Zap
// marker. Valid only with no open transaction, under the same
// sole-process requirement as CompactLog; guarded by the Multiple lock.
func (c *Context) ResetLog() error {
	if c.done {
		return ErrShutdown
	}
	if c.status != StatusOff {
		return fmt.Errorf("reset with open transaction: %w", ErrAlreadyActive)
	}
	if err := c.lockBounded(locktab.Multiple); err != nil {
		return err
	}
	defer c.unlock(locktab.Multiple)

	if err := c.logFile.Reset(); err != nil {
		return err
	}
	if _, err := c.appendAdmin(format.EntryZap, nil); err != nil {
		return err
	}
	c.log.Info("log reset")
	return c.logFile.Flush(logfile.FlushData)
}

// MarkBackedUp records that the table set was backed up, under the Backup
// lock.
func (c *Context) MarkBackedUp() error {
	if c.done {
		return ErrShutdown
	}
	if err := c.lockBounded(locktab.Backup); err != nil {
		return err
	}
	defer c.unlock(locktab.Backup)

	if _, err := c.appendShared(format.EntryBackedUp, nil); err != nil {
		return err
	}
	return c.logFile.Flush(logfile.FlushData)
}

// unterminated returns the set of transaction ids that have a Start entry
// with no terminal marker in the log.
func (c *Context) unterminated() (map[int32]bool, error) {
	live := make(map[int32]bool)
	var cur logfile.Cursor
	err := c.logFile.Top(&cur)
	for err == nil {
		h := cur.Header()
		switch h.Type {
		case format.EntryStart:
			live[h.TranID] = true
		case format.EntryCommitPhaseTwo, format.EntryRollback:
			delete(live, h.TranID)
		}
		err = c.logFile.Skip(&cur, 1)
	}
	if err != logfile.ErrEndOfLog {
		return nil, err
	}
	return live, nil
}
