package logfile

import (
	"fmt"

	"github.com/tablekit/tranlog/internal/buf"
	"github.com/tablekit/tranlog/internal/format"
)

// Cursor is a position within a log file, holding a decoded copy of the
// current entry. A fresh Cursor has no current entry until positioned with
// Top or Bottom.
type Cursor struct {
	off   int64
	hdr   format.Header
	data  []byte
	valid bool
}

// Valid reports whether the cursor has a current entry.
func (c *Cursor) Valid() bool { return c.valid }

// Offset returns the file offset of the current entry header.
func (c *Cursor) Offset() int64 { return c.off }

// Header returns the current entry's decoded header.
func (c *Cursor) Header() format.Header { return c.hdr }

// Type returns the current entry's type.
func (c *Cursor) Type() format.EntryType { return c.hdr.Type }

// TranID returns the current entry's owning transaction id.
func (c *Cursor) TranID() int32 { return c.hdr.TranID }

// Data returns the current entry's payload. The slice is owned by the
// cursor and is overwritten by the next navigation call.
func (c *Cursor) Data() []byte { return c.data }

func (c *Cursor) invalidate() {
	c.valid = false
	c.off = 0
	c.data = nil
}

// readEntryAt decodes the entry at off into the cursor, cross-checking the
// trailer against the header length.
func (l *LogFile) readEntryAt(c *Cursor, off int64) error {
	if off < int64(format.FileHeaderSize) || off+int64(format.HeaderSize) > l.size {
		return fmt.Errorf("entry offset %d out of range: %w", off, format.ErrLengthMismatch)
	}
	var hb [format.HeaderSize]byte
	if _, err := l.f.ReadAt(hb[:], off); err != nil {
		return fmt.Errorf("read entry header at %d: %w", off, err)
	}
	h, err := l.codec.ParseHeader(hb[:])
	if err != nil {
		return err
	}
	end := off + h.EntryLen()
	if end > l.size {
		return fmt.Errorf("entry at %d overruns log end: %w", off, format.ErrLengthMismatch)
	}

	restLen, ok := buf.AddOverflowSafe(int(h.DataLen), format.TrailerSize)
	if !ok {
		return fmt.Errorf("entry at %d: payload length %d: %w", off, h.DataLen, format.ErrLengthMismatch)
	}
	rest := make([]byte, restLen)
	if _, err := l.f.ReadAt(rest, off+int64(format.HeaderSize)); err != nil {
		return fmt.Errorf("read entry payload at %d: %w", off, err)
	}
	tb, ok := buf.Slice(rest, int(h.DataLen), format.TrailerSize)
	if !ok {
		return fmt.Errorf("entry at %d: payload length %d: %w", off, h.DataLen, format.ErrLengthMismatch)
	}
	trailer, err := l.codec.ParseTrailer(tb)
	if err != nil {
		return err
	}
	if trailer != h.Trailer() {
		return fmt.Errorf("entry at %d: trailer %d, want %d: %w",
			off, trailer, h.Trailer(), format.ErrLengthMismatch)
	}

	c.off = off
	c.hdr = h
	c.data = rest[:h.DataLen]
	c.valid = true
	return nil
}

// Top positions the cursor at the first entry. An empty log yields
// ErrEndOfLog and an invalid cursor.
func (l *LogFile) Top(c *Cursor) error {
	if l.f == nil {
		return ErrClosed
	}
	if l.size <= int64(format.FileHeaderSize) {
		c.invalidate()
		return ErrEndOfLog
	}
	return l.readEntryAt(c, int64(format.FileHeaderSize))
}

// Bottom positions the cursor at the last entry. An empty log yields
// ErrEndOfLog and an invalid cursor.
func (l *LogFile) Bottom(c *Cursor) error {
	if l.f == nil {
		return ErrClosed
	}
	if l.size <= int64(format.FileHeaderSize) {
		c.invalidate()
		return ErrEndOfLog
	}
	off, err := l.prevStart(l.size)
	if err != nil {
		return err
	}
	return l.readEntryAt(c, off)
}

// prevStart returns the offset of the entry whose end is at end, by reading
// the trailing length field that precedes it.
func (l *LogFile) prevStart(end int64) (int64, error) {
	var tb [format.TrailerSize]byte
	if _, err := l.f.ReadAt(tb[:], end-int64(format.TrailerSize)); err != nil {
		return 0, fmt.Errorf("read trailer before %d: %w", end, err)
	}
	trailer, err := l.codec.ParseTrailer(tb[:])
	if err != nil {
		return 0, err
	}
	start := end - int64(format.TrailerSize) - int64(trailer)
	if start < int64(format.FileHeaderSize) {
		return 0, fmt.Errorf("trailer before %d points outside log: %w", end, format.ErrLengthMismatch)
	}
	return start, nil
}

// Skip moves the cursor delta entries forward (delta > 0) or backward
// (delta < 0). Moving past either end invalidates the cursor and returns
// ErrEndOfLog; this signals end-of-log, not a failure. Corruption
// encountered along the way is a real error.
func (l *LogFile) Skip(c *Cursor, delta int) error {
	if l.f == nil {
		return ErrClosed
	}
	if !c.valid {
		return ErrEndOfLog
	}
	for delta > 0 {
		next := c.off + c.hdr.EntryLen()
		if next >= l.size {
			c.invalidate()
			return ErrEndOfLog
		}
		if err := l.readEntryAt(c, next); err != nil {
			return err
		}
		delta--
	}
	for delta < 0 {
		if c.off <= int64(format.FileHeaderSize) {
			c.invalidate()
			return ErrEndOfLog
		}
		prev, err := l.prevStart(c.off)
		if err != nil {
			return err
		}
		if err := l.readEntryAt(c, prev); err != nil {
			return err
		}
		delta++
	}
	return nil
}
