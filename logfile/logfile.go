package logfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/tablekit/tranlog/internal/format"
	"github.com/tablekit/tranlog/internal/fsync"
)

// UseHeaderTranID tells Append to keep the transaction id already present in
// the entry header. Recovery uses it to force a specific id onto synthetic
// entries; the live write path passes the engine's current id instead.
const UseHeaderTranID int32 = -1

var (
	// ErrEndOfLog signals that navigation moved past either end of the log.
	// The cursor is left with no current entry; this is an end condition,
	// not a failure.
	ErrEndOfLog = errors.New("logfile: no current entry")
	// ErrClosed is returned for operations on a closed log file.
	ErrClosed = errors.New("logfile: file closed")
)

// FlushMode selects how much durability Flush buys.
type FlushMode int

const (
	// FlushData flushes file data only (fdatasync where available).
	FlushData FlushMode = iota
	// FlushFull forces write-through to the physical disk (F_FULLFSYNC on
	// macOS). Used at the phase-one commit barrier.
	FlushFull
)

// LogFile is an append-only sequence of variable-length entries over a
// regular file. Every entry carries a redundant trailing length so the
// sequence can be walked in both directions; see the format package for the
// on-disk layout.
//
// A LogFile is not safe for concurrent use within a process. Cross-process
// sharing is serialized by the lock table, not here.
type LogFile struct {
	f     *os.File
	path  string
	codec format.Codec

	// size is the logical end of the log. After Open it excludes any torn
	// trailing append discarded during the opening scan.
	size       int64
	entries    int
	maxTranID  int32
	needsFlush bool
}

// Create makes a new, empty log file at path using the current format
// version. The path must not already exist.
func Create(path string) (*LogFile, error) {
	codec, err := format.CodecForVersion(format.VersionNum)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	hdr := codec.EncodeFileHeader()
	if _, err := f.WriteAt(hdr, 0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write log file header: %w", err)
	}
	return &LogFile{
		f:          f,
		path:       path,
		codec:      codec,
		size:       int64(format.FileHeaderSize),
		needsFlush: true,
	}, nil
}

// Open opens an existing log file, validating its signature and version.
//
// A physically truncated trailing entry (a torn append from a crash) is
// detected and truncated away before the file is used. Interior entries
// whose trailer disagrees with their header length make the whole open fail
// with format.ErrLengthMismatch; a corrupt log is never silently walked
// past.
func Open(path string) (*LogFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l, err := open(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func open(f *os.File, path string) (*LogFile, error) {
	var fileHdr [format.FileHeaderSize]byte
	if _, err := f.ReadAt(fileHdr[:], 0); err != nil {
		return nil, fmt.Errorf("read log file header: %w", format.ErrTruncated)
	}
	codec, err := format.ParseFileHeader(fileHdr[:])
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	l := &LogFile{f: f, path: path, codec: codec, size: int64(format.FileHeaderSize)}
	if err := l.scan(st.Size()); err != nil {
		return nil, err
	}
	return l, nil
}

// scan walks every entry forward, verifying the trailer invariant, counting
// entries, and tracking the highest transaction id seen. Anything malformed
// at the physical tail is a torn append and is truncated away; interior
// headers were verified when written, so a malformed interior entry means
// real corruption.
func (l *LogFile) scan(physical int64) error {
	off := l.size
	for off < physical {
		if physical-off < int64(format.HeaderSize) {
			return l.truncateTail(off)
		}
		var hb [format.HeaderSize]byte
		if _, err := l.f.ReadAt(hb[:], off); err != nil {
			return fmt.Errorf("read entry header at %d: %w", off, err)
		}
		h, err := l.codec.ParseHeader(hb[:])
		if err != nil {
			// An unparsable header can only be the torn tail.
			return l.truncateTail(off)
		}
		end := off + h.EntryLen()
		if end > physical {
			return l.truncateTail(off)
		}
		var tb [format.TrailerSize]byte
		if _, err := l.f.ReadAt(tb[:], end-int64(format.TrailerSize)); err != nil {
			return fmt.Errorf("read entry trailer at %d: %w", off, err)
		}
		trailer, err := l.codec.ParseTrailer(tb[:])
		if err != nil {
			return err
		}
		if trailer != h.Trailer() {
			if end == physical {
				// Entry length landed on EOF but the trailer never made
				// it down intact: a torn append, not corruption.
				return l.truncateTail(off)
			}
			return fmt.Errorf("entry at %d: trailer %d, want %d: %w",
				off, trailer, h.Trailer(), format.ErrLengthMismatch)
		}
		l.entries++
		if h.TranID > l.maxTranID {
			l.maxTranID = h.TranID
		}
		l.size = end
		off = end
	}
	return nil
}

func (l *LogFile) truncateTail(off int64) error {
	if err := l.f.Truncate(off); err != nil {
		return fmt.Errorf("truncate torn entry at %d: %w", off, err)
	}
	l.size = off
	return nil
}

// Refresh picks up entries appended by other processes since the file was
// opened or last refreshed. Callers must hold the lock guarding the log's
// global structure so no append is in flight while scanning.
func (l *LogFile) Refresh() error {
	if l.f == nil {
		return ErrClosed
	}
	st, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	if st.Size() > l.size {
		return l.scan(st.Size())
	}
	return nil
}

// Append writes one entry (header, payload, trailer) at the current end of
// the log. A tranID other than UseHeaderTranID replaces the id in h.
// Returns the file offset of the new entry.
func (l *LogFile) Append(h format.Header, payload []byte, tranID int32) (int64, error) {
	if l.f == nil {
		return 0, ErrClosed
	}
	if !h.Type.Valid() {
		return 0, fmt.Errorf("append entry type %d: %w", uint16(h.Type), format.ErrBadEntryType)
	}
	if tranID != UseHeaderTranID {
		h.TranID = tranID
	}
	h.DataLen = uint32(len(payload))

	b := make([]byte, 0, h.EntryLen())
	b = l.codec.EncodeHeader(b, h)
	b = append(b, payload...)
	b = l.codec.PutTrailer(b, h)

	off := l.size
	if _, err := l.f.WriteAt(b, off); err != nil {
		return 0, fmt.Errorf("append log entry: %w", err)
	}
	l.size = off + h.EntryLen()
	l.entries++
	if h.TranID > l.maxTranID {
		l.maxTranID = h.TranID
	}
	l.needsFlush = true
	return off, nil
}

// Flush forces appended entries to stable storage. It is a no-op when
// nothing was appended since the last flush.
func (l *LogFile) Flush(mode FlushMode) error {
	if l.f == nil {
		return ErrClosed
	}
	if !l.needsFlush {
		return nil
	}
	var err error
	if mode == FlushFull {
		err = fsync.Full(l.f)
	} else {
		err = fsync.Datasync(l.f)
	}
	if err != nil {
		return fmt.Errorf("flush log file: %w", err)
	}
	l.needsFlush = false
	return nil
}

// Close flushes and closes the underlying file. The LogFile must not be
// used afterwards.
func (l *LogFile) Close() error {
	if l.f == nil {
		return ErrClosed
	}
	flushErr := l.Flush(FlushData)
	closeErr := l.f.Close()
	l.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Path returns the log file's path.
func (l *LogFile) Path() string { return l.path }

// Size returns the logical end of the log in bytes.
func (l *LogFile) Size() int64 { return l.size }

// Entries returns the number of entries currently in the log.
func (l *LogFile) Entries() int { return l.entries }

// MaxTranID returns the highest transaction id recorded in the log,
// including entries appended since open.
func (l *LogFile) MaxTranID() int32 { return l.maxTranID }

// Version returns the format version the file was opened with.
func (l *LogFile) Version() uint16 { return l.codec.Version() }
