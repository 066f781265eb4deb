package logfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/tablekit/tranlog/internal/format"
)

// Rewrite compacts the log in place, keeping only the entries for which
// keep returns true. The surviving entries are copied in order to a sibling
// file which then atomically replaces the log. Callers must hold whatever
// lock guards the log's global structure.
func (l *LogFile) Rewrite(keep func(format.Header, []byte) bool) error {
	if l.f == nil {
		return ErrClosed
	}
	tmpPath := l.path + ".pack"
	os.Remove(tmpPath)

	nl, err := Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() {
		if nl != nil {
			nl.Close()
			os.Remove(tmpPath)
		}
	}()

	var cur Cursor
	err = l.Top(&cur)
	for err == nil {
		h := cur.Header()
		if keep(h, cur.Data()) {
			if _, err := nl.Append(h, cur.Data(), UseHeaderTranID); err != nil {
				return err
			}
		}
		err = l.Skip(&cur, 1)
	}
	if !errors.Is(err, ErrEndOfLog) {
		return err
	}

	if err := nl.Flush(FlushFull); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("replace log file: %w", err)
	}

	// Adopt the replacement's handle and drop the old one.
	l.f.Close()
	l.f = nl.f
	l.size = nl.size
	l.entries = nl.entries
	l.maxTranID = nl.maxTranID
	l.needsFlush = false
	nl = nil
	return nil
}

// Reset discards every entry, leaving an empty log with a fresh file
// header. Callers must hold whatever lock guards the log's global
// structure.
func (l *LogFile) Reset() error {
	if l.f == nil {
		return ErrClosed
	}
	if err := l.f.Truncate(int64(format.FileHeaderSize)); err != nil {
		return fmt.Errorf("reset log file: %w", err)
	}
	l.size = int64(format.FileHeaderSize)
	l.entries = 0
	l.maxTranID = 0
	l.needsFlush = true
	return nil
}
