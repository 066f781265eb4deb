package format

import "errors"

var (
	// ErrBadMagic indicates the file did not start with the log signature.
	ErrBadMagic = errors.New("format: log signature mismatch")
	// ErrVersionMismatch indicates the file was written by an incompatible
	// format version.
	ErrVersionMismatch = errors.New("format: log file version mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrLengthMismatch indicates an entry trailer disagreed with its header
	// length. The log is structurally corrupt past this point.
	ErrLengthMismatch = errors.New("format: log file invalid file status")
	// ErrBadEntryType indicates an entry carried an unknown type tag.
	ErrBadEntryType = errors.New("format: unknown log entry type")
)
