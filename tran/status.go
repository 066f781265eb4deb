package tran

// Status is the engine instance's coarse transaction state.
type Status int

const (
	// StatusOff means no transaction is open.
	StatusOff Status = iota
	// StatusActive means a transaction is open and table writes are being
	// logged.
	StatusActive
	// StatusRollback means an undo pass is running; table writes made by
	// undo callbacks are not re-logged.
	StatusRollback
)

func (s Status) String() string {
	switch s {
	case StatusOff:
		return "off"
	case StatusActive:
		return "active"
	case StatusRollback:
		return "rollback"
	}
	return "unknown"
}

// ReleaseMode selects what happens to a transaction's log space at
// phase-two commit.
type ReleaseMode int

const (
	// RetainLog keeps the transaction's entries for audit; compaction may
	// reclaim them later.
	RetainLog ReleaseMode = iota
	// VoidLog marks the transaction's entries immediately reclaimable.
	VoidLog
)
