package tran

// Table is the contract the table-storage collaborator implements so the
// engine can undo and finalize its writes.
//
// Before mutating a record while a transaction is active, the collaborator
// must call Context.RecordWrite (with the record's before-image) or
// Context.RecordAppend. Unwrite and Unappend are invoked only during
// rollback and recovery, in strict reverse order of the original writes.
type Table interface {
	// DataID identifies the table in log entries. It must be stable across
	// sessions sharing the log.
	DataID() uint32

	// Name is the table's display name, used in logs and diagnostics.
	Name() string

	// Unwrite restores a record to its before-image.
	Unwrite(recno uint32, before []byte) error

	// Unappend removes the record appended at recno, truncating the table
	// back over it.
	Unappend(recno uint32) error

	// Flush materializes buffered writes; called during phase-two commit
	// and commit recovery.
	Flush() error
}
