// Package logfile implements the durable, append-only transaction log file.
//
// # Layout
//
// The file opens with a fixed 16-byte header (signature, format version)
// followed by a sequence of variable-length entries:
//
//	[entry header 24B][payload][trailing length u32]
//
// The trailing length repeats header size + payload length. That redundancy
// is a deliberate format invariant, not a legacy quirk: it is what makes
// variable-length bidirectional scanning possible without a separate index.
// Forward navigation reads the header length; backward navigation reads the
// trailer of the preceding entry and seeks back over it.
//
// # Failure semantics
//
// A trailer that disagrees with its header length is structural corruption
// (format.ErrLengthMismatch); the engine refuses to proceed past it. The
// one exception is the physical end of file: an entry cut short by a crash
// mid-append is detected during Open and truncated away before the log is
// used.
//
// # Durability
//
// Appends are buffered by the OS until Flush. FlushFull is the write-through
// barrier used for phase-one commit; FlushData suffices everywhere else.
package logfile
