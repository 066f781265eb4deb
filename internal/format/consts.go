// Package format houses the low-level codec for the transaction log file
// format. The goal is to keep the encoding focused, allocation-free where
// possible, and independent from the public API so higher-level packages can
// orchestrate the data in a more ergonomic form.
package format

// LogSignature is the four-byte signature at the start of every log file.
// Layout:
//
//	0x00  'T' 'L' 'O' 'G'
var LogSignature = []byte{'T', 'L', 'O', 'G'}

const (
	// VersionNum is the current log file format version. Files carrying a
	// different version are rejected on open, never reinterpreted.
	VersionNum = 2

	// FileHeaderSize is the size of the file-level header block in bytes.
	FileHeaderSize = 16

	// HeaderSize is the size of the fixed per-entry header in bytes.
	HeaderSize = 24

	// TrailerSize is the size of the redundant trailing length field that
	// follows every entry payload. The trailer is what makes the log
	// bidirectionally navigable: to move backward one entry, read the
	// trailer first, then seek back trailer+TrailerSize bytes.
	TrailerSize = 4

	// File header field offsets.
	FileSignatureOffset = 0x00 // 4 bytes
	FileVersionOffset   = 0x04 // 2 bytes
	FileCodecOffset     = 0x06 // 2 bytes
	// 0x08..0x0F reserved, zero.

	// Entry header field offsets.
	EntryTypeOffset     = 0x00 // 2 bytes
	EntryReservedOffset = 0x02 // 2 bytes, zero
	ClientIDOffset      = 0x04 // 4 bytes, signed
	ClientDataIDOffset  = 0x08 // 4 bytes
	ServerDataIDOffset  = 0x0C // 4 bytes
	TranIDOffset        = 0x10 // 4 bytes, signed
	DataLenOffset       = 0x14 // 4 bytes
)

// EntryType tags a log entry. The numeric values are part of the on-disk
// format and shared across versions; they must never be renumbered.
type EntryType uint16

const (
	EntryOpen           EntryType = 1
	EntryOpenTemp       EntryType = 2
	EntryClose          EntryType = 3
	EntryStart          EntryType = 4
	EntryCommitPhaseOne EntryType = 5
	EntryCommitPhaseTwo EntryType = 6
	EntryRollback       EntryType = 7
	EntryWrite          EntryType = 8
	EntryAppend         EntryType = 9
	EntryVoid           EntryType = 10
	EntryPack           EntryType = 12
	EntryZap            EntryType = 13
	EntryInit           EntryType = 15
	EntryShutdown       EntryType = 16
	EntryBackedUp       EntryType = 17
	EntryInitUndo       EntryType = 18
)

var entryTypeNames = map[EntryType]string{
	EntryOpen:           "Open",
	EntryOpenTemp:       "OpenTemp",
	EntryClose:          "Close",
	EntryStart:          "Start",
	EntryCommitPhaseOne: "CommitPhaseOne",
	EntryCommitPhaseTwo: "CommitPhaseTwo",
	EntryRollback:       "Rollback",
	EntryWrite:          "Write",
	EntryAppend:         "Append",
	EntryVoid:           "Void",
	EntryPack:           "Pack",
	EntryZap:            "Zap",
	EntryInit:           "Init",
	EntryShutdown:       "Shutdown",
	EntryBackedUp:       "BackedUp",
	EntryInitUndo:       "InitUndo",
}

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	_, ok := entryTypeNames[t]
	return ok
}

func (t EntryType) String() string {
	if name, ok := entryTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether t ends a transaction's life in the log.
func (t EntryType) Terminal() bool {
	return t == EntryCommitPhaseTwo || t == EntryRollback
}
