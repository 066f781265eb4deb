package tran

import (
	"errors"

	"github.com/tablekit/tranlog/internal/format"
)

var (
	// ErrParameter indicates a nil or invalid argument. Rejected locally
	// with no side effects.
	ErrParameter = errors.New("tran: invalid parameter")
	// ErrDisabled indicates the transaction subsystem is not enabled on
	// this engine instance.
	ErrDisabled = errors.New("tran: transactions disabled")
	// ErrNotActive indicates an operation that needs an open transaction
	// was attempted without one.
	ErrNotActive = errors.New("tran: no active transaction")
	// ErrAlreadyActive indicates Start was attempted while a transaction
	// is already open on this engine instance.
	ErrAlreadyActive = errors.New("tran: transaction already active")
	// ErrCommitted indicates Rollback was attempted after phase-one commit
	// succeeded. A phase-one-committed transaction can only complete.
	ErrCommitted = errors.New("tran: transaction already committed")
	// ErrNoPhaseOne indicates CommitPhaseTwo was attempted without a
	// successful CommitPhaseOne.
	ErrNoPhaseOne = errors.New("tran: commit phase one not done")
	// ErrCollaborator indicates a table-storage undo or apply callback
	// failed. The log records how far undo progressed so a recovery pass
	// resumes instead of undoing twice.
	ErrCollaborator = errors.New("tran: table callback failed")
	// ErrTableUnavailable indicates recovery could not resolve a table
	// that participated in a phase-one-committed transaction. Fatal;
	// operator intervention is required.
	ErrTableUnavailable = errors.New("tran: participating table unavailable")
	// ErrShutdown indicates the engine instance was already shut down.
	ErrShutdown = errors.New("tran: engine shut down")

	// ErrLogCorrupt is the structural-corruption error surfaced when an
	// entry's trailer disagrees with its header length or the file version
	// is wrong. Never auto-repaired.
	ErrLogCorrupt = format.ErrLengthMismatch
)
