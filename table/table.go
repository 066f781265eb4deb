// Package table implements a fixed-length-record table file in the xBASE
// mold: a small header followed by records of uniform size, text fields
// space-padded in a single-byte codepage.
//
// It is the reference collaborator for the transaction engine. Write and
// Append route their before-images through the active transaction before
// mutating the file; Unwrite, Unappend, and Flush are the engine's undo
// and finalize callbacks.
package table

import (
	"bytes"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/tablekit/tranlog/internal/buf"
	"github.com/tablekit/tranlog/internal/fsync"
	"github.com/tablekit/tranlog/tran"
)

// Header layout. Records follow immediately, record numbers are 1-based.
//
//	Offset  Size  Description
//	------  ----  --------------------------------
//	 0x00    4    'R' 'T' 'B' 'L'
//	 0x04    2    Format version (1)
//	 0x06    2    Record length in bytes
//	 0x08    4    Record count
//	 0x0C    1    Codepage (language driver id)
//	 0x0D    3    Reserved, zero
const (
	headerSize   = 16
	tableVersion = 1
	recLenOffset = 0x06
	countOffset  = 0x08
	cpOffset     = 0x0C
)

var signature = []byte{'R', 'T', 'B', 'L'}

var (
	// ErrBadHeader indicates the file is not a table or has a bad version.
	ErrBadHeader = errors.New("table: bad header")
	// ErrRecordRange indicates a record number outside the table.
	ErrRecordRange = errors.New("table: record number out of range")
	// ErrRecordSize indicates record bytes longer than the record length.
	ErrRecordSize = errors.New("table: record too long")
	// ErrNotLast indicates Unappend of a record other than the last.
	ErrNotLast = errors.New("table: only the last record can be unappended")
)

// Table is one open table file. Not safe for concurrent use within a
// process.
type Table struct {
	f      *os.File
	path   string
	name   string
	dataID uint32
	recLen uint16
	count  uint32
	cp     Codepage
	ctx    *tran.Context
}

// Create makes a new, empty table file.
func Create(path string, recLen uint16, cp Codepage) (*Table, error) {
	if recLen == 0 {
		return nil, fmt.Errorf("zero record length: %w", ErrBadHeader)
	}
	if !cp.Supported() {
		return nil, fmt.Errorf("id 0x%02X: %w", uint8(cp), ErrCodepage)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	t := &Table{f: f, path: path, name: tableName(path), recLen: recLen, cp: cp}
	t.dataID = dataIDFor(t.name)
	if err := t.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return t, nil
}

// Open opens an existing table file and validates its header.
func Open(path string) (*Table, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	var hb [headerSize]byte
	if _, err := f.ReadAt(hb[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("read table header: %w", ErrBadHeader)
	}
	if !bytes.Equal(hb[:4], signature) || buf.U16LE(hb[4:]) != tableVersion {
		f.Close()
		return nil, fmt.Errorf("%q: %w", path, ErrBadHeader)
	}
	t := &Table{
		f:      f,
		path:   path,
		name:   tableName(path),
		recLen: buf.U16LE(hb[recLenOffset:]),
		count:  buf.U32LE(hb[countOffset:]),
		cp:     Codepage(hb[cpOffset]),
	}
	t.dataID = dataIDFor(t.name)
	return t, nil
}

func tableName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// dataIDFor derives the table's stable log identity from its name, so
// every session sharing the files resolves the same id.
func dataIDFor(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

func (t *Table) writeHeader() error {
	var hb [headerSize]byte
	copy(hb[:], signature)
	buf.PutU16(hb[:], 4, tableVersion)
	buf.PutU16(hb[:], recLenOffset, t.recLen)
	buf.PutU32(hb[:], countOffset, t.count)
	hb[cpOffset] = uint8(t.cp)
	if _, err := t.f.WriteAt(hb[:], 0); err != nil {
		return fmt.Errorf("write table header: %w", err)
	}
	return nil
}

// Bind attaches the table to an engine instance: transactional writes log
// through ctx, and the table becomes resolvable during that instance's
// lifetime.
func (t *Table) Bind(ctx *tran.Context) error {
	if err := ctx.RegisterTable(t); err != nil {
		return err
	}
	t.ctx = ctx
	return nil
}

// DataID implements tran.Table.
func (t *Table) DataID() uint32 { return t.dataID }

// Name implements tran.Table.
func (t *Table) Name() string { return t.name }

// Count returns the number of records.
func (t *Table) Count() uint32 { return t.count }

// RecordLength returns the fixed record size in bytes.
func (t *Table) RecordLength() uint16 { return t.recLen }

// Codepage returns the table's language driver id.
func (t *Table) Codepage() Codepage { return t.cp }

func (t *Table) recordOffset(recno uint32) int64 {
	return int64(headerSize) + int64(recno-1)*int64(t.recLen)
}

// Read returns a copy of record recno.
func (t *Table) Read(recno uint32) ([]byte, error) {
	if recno < 1 || recno > t.count {
		return nil, fmt.Errorf("record %d of %d: %w", recno, t.count, ErrRecordRange)
	}
	rec := make([]byte, t.recLen)
	if _, err := t.f.ReadAt(rec, t.recordOffset(recno)); err != nil {
		return nil, fmt.Errorf("read record %d: %w", recno, err)
	}
	return rec, nil
}

// pad space-fills data to the record length.
func (t *Table) pad(data []byte) ([]byte, error) {
	if len(data) > int(t.recLen) {
		return nil, fmt.Errorf("%d bytes into %d: %w", len(data), t.recLen, ErrRecordSize)
	}
	rec := bytes.Repeat([]byte{' '}, int(t.recLen))
	copy(rec, data)
	return rec, nil
}

// Write overwrites record recno. While a transaction is active the
// record's before-image is logged first, so the change can be undone.
func (t *Table) Write(recno uint32, data []byte) error {
	if recno < 1 || recno > t.count {
		return fmt.Errorf("record %d of %d: %w", recno, t.count, ErrRecordRange)
	}
	rec, err := t.pad(data)
	if err != nil {
		return err
	}
	if t.ctx != nil && t.ctx.InTransaction() {
		before, err := t.Read(recno)
		if err != nil {
			return err
		}
		if err := t.ctx.RecordWrite(t, recno, before); err != nil {
			return err
		}
	}
	if _, err := t.f.WriteAt(rec, t.recordOffset(recno)); err != nil {
		return fmt.Errorf("write record %d: %w", recno, err)
	}
	return nil
}

// Append adds a record at the end and returns its record number. While a
// transaction is active the append is logged first, so it can be undone.
func (t *Table) Append(data []byte) (uint32, error) {
	rec, err := t.pad(data)
	if err != nil {
		return 0, err
	}
	recno := t.count + 1
	if t.ctx != nil && t.ctx.InTransaction() {
		if err := t.ctx.RecordAppend(t, recno); err != nil {
			return 0, err
		}
	}
	if _, err := t.f.WriteAt(rec, t.recordOffset(recno)); err != nil {
		return 0, fmt.Errorf("append record %d: %w", recno, err)
	}
	t.count = recno
	if err := t.writeHeader(); err != nil {
		return 0, err
	}
	return recno, nil
}

// Unwrite implements tran.Table: restores a record to its before-image
// without logging.
func (t *Table) Unwrite(recno uint32, before []byte) error {
	if recno < 1 || recno > t.count {
		return fmt.Errorf("record %d of %d: %w", recno, t.count, ErrRecordRange)
	}
	rec, err := t.pad(before)
	if err != nil {
		return err
	}
	if _, err := t.f.WriteAt(rec, t.recordOffset(recno)); err != nil {
		return fmt.Errorf("unwrite record %d: %w", recno, err)
	}
	return nil
}

// Unappend implements tran.Table: truncates the table back over an
// appended record. Undo runs in reverse order, so the record to remove is
// always the last one.
func (t *Table) Unappend(recno uint32) error {
	if recno != t.count || t.count == 0 {
		return fmt.Errorf("record %d, count %d: %w", recno, t.count, ErrNotLast)
	}
	t.count--
	if err := t.f.Truncate(t.recordOffset(recno)); err != nil {
		return fmt.Errorf("unappend record %d: %w", recno, err)
	}
	return t.writeHeader()
}

// Flush implements tran.Table: makes the table's state durable.
func (t *Table) Flush() error {
	if err := t.writeHeader(); err != nil {
		return err
	}
	if err := fsync.Datasync(t.f); err != nil {
		return fmt.Errorf("flush table %q: %w", t.name, err)
	}
	return nil
}

// Close flushes and closes the table file.
func (t *Table) Close() error {
	if t.f == nil {
		return nil
	}
	if t.ctx != nil {
		t.ctx.UnregisterTable(t)
		t.ctx = nil
	}
	flushErr := t.Flush()
	closeErr := t.f.Close()
	t.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ReadString reads record recno and decodes it from the table's codepage,
// trimming the trailing space padding.
func (t *Table) ReadString(recno uint32) (string, error) {
	rec, err := t.Read(recno)
	if err != nil {
		return "", err
	}
	s, err := t.cp.Decode(bytes.TrimRight(rec, " "))
	if err != nil {
		return "", err
	}
	return s, nil
}

// WriteString encodes s into the table's codepage and overwrites record
// recno.
func (t *Table) WriteString(recno uint32, s string) error {
	b, err := t.cp.Encode(s)
	if err != nil {
		return err
	}
	return t.Write(recno, b)
}

// AppendString encodes s into the table's codepage and appends it.
func (t *Table) AppendString(s string) (uint32, error) {
	b, err := t.cp.Encode(s)
	if err != nil {
		return 0, err
	}
	return t.Append(b)
}
