// Package locktab implements the cooperative multi-user lock table.
//
// Cooperating processes sharing one log and table set serialize themselves
// through a small set of reserved lock identifiers, each mapped to an
// OS-level advisory byte-range lock on a sidecar control file. The numeric
// offsets sit above a large fixed base so they can share an offset space
// with ordinary record locks without collision; the mapping is validated
// and non-overlapping by construction.
//
// Per-user slots hand out small unique client ids without a central
// allocator: a client try-locks the first free slot and the slot index is
// its id for the session. A crashed client's slot is released by the OS,
// so the slot becomes reusable without cleanup.
package locktab

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tablekit/tranlog/internal/rangelock"
)

const (
	// LockBase is the first offset of the reserved lock namespace. Record
	// locks taken by table storage live below it.
	LockBase int64 = 1_000_000_000

	// userSlotBase is where the per-user slots start, relative to LockBase.
	userSlotBase = 1000

	// MaxUsers is the number of per-user slots, fixed by the file format's
	// lock layout.
	MaxUsers = 1000
)

var (
	// ErrLockFailed is returned when a bounded acquisition exhausts its
	// attempts without getting the lock.
	ErrLockFailed = errors.New("locktab: lock not acquired")
	// ErrBadID is returned for an identifier outside the reserved namespace.
	ErrBadID = errors.New("locktab: invalid lock identifier")
	// ErrNotHeld is returned when unlocking an identifier this table does
	// not hold.
	ErrNotHeld = errors.New("locktab: lock not held")
	// ErrNoFreeSlot is returned when every user slot is taken.
	ErrNoFreeSlot = errors.New("locktab: no free user slot")
)

// ID names one reserved lock in the shared namespace.
type ID int32

const (
	// Server serializes engine-wide administrative operations.
	Server ID = iota
	// Multiple guards the log file's global structure (transaction starts,
	// compaction, reset) across processes.
	Multiple
	// Backup is held while a backup of the table set is taken.
	Backup
	// Restore is held while a backup is restored.
	Restore
	// Fix is held by repair and maintenance tooling.
	Fix

	reservedCount
)

var idNames = [...]string{"Server", "Multiple", "Backup", "Restore", "Fix"}

// User returns the ID for per-user slot i. Offsets for user slots start
// above the reserved identifiers, so the two ranges cannot overlap.
func User(slot int) ID {
	return reservedCount + ID(slot)
}

// Valid reports whether the identifier maps into the reserved namespace.
func (id ID) Valid() bool {
	if id >= Server && id < reservedCount {
		return true
	}
	slot := int(id - reservedCount)
	return slot >= 0 && slot < MaxUsers
}

func (id ID) String() string {
	if id >= Server && id < reservedCount {
		return idNames[id]
	}
	if id.Valid() {
		return fmt.Sprintf("User(%d)", int(id-reservedCount))
	}
	return fmt.Sprintf("ID(%d)", int32(id))
}

// offset maps the identifier to its byte offset in the control file.
func (id ID) offset() (int64, error) {
	switch {
	case id >= Server && id < reservedCount:
		return LockBase + int64(id), nil
	case id.Valid():
		return LockBase + userSlotBase + int64(id-reservedCount), nil
	default:
		return 0, fmt.Errorf("%v: %w", id, ErrBadID)
	}
}

// Table is one process's handle on the shared lock namespace. It tracks
// which identifiers it holds so Close can release them. Not safe for
// concurrent use by multiple goroutines.
type Table struct {
	f        *os.File
	path     string
	held     map[ID]bool
	userSlot int
}

// Open opens (creating if needed) the control file at path and returns a
// handle with no locks held.
func Open(path string) (*Table, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock control file: %w", err)
	}
	return &Table{
		f:        f,
		path:     path,
		held:     make(map[ID]bool),
		userSlot: -1,
	}, nil
}

// TryLock attempts one non-blocking acquisition of id.
func (t *Table) TryLock(id ID) error {
	off, err := id.offset()
	if err != nil {
		return err
	}
	if t.held[id] {
		return nil
	}
	if err := rangelock.TryLock(t.f, off); err != nil {
		if errors.Is(err, rangelock.ErrWouldBlock) {
			return ErrLockFailed
		}
		return err
	}
	t.held[id] = true
	return nil
}

// Lock acquires id with a fixed delay-and-retry loop: up to attempts
// tries, sleeping delay between them. Exhausting the attempts returns
// ErrLockFailed rather than blocking indefinitely.
func (t *Table) Lock(id ID, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		err := t.TryLock(id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLockFailed) {
			return err
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("%v after %d attempts: %w", id, attempts, ErrLockFailed)
}

// LockWait acquires id, blocking at the OS lock primitive until the holder
// releases it. Fairness and wake order are the OS's.
func (t *Table) LockWait(id ID) error {
	off, err := id.offset()
	if err != nil {
		return err
	}
	if t.held[id] {
		return nil
	}
	if err := rangelock.Lock(t.f, off); err != nil {
		return err
	}
	t.held[id] = true
	return nil
}

// Unlock releases id.
func (t *Table) Unlock(id ID) error {
	off, err := id.offset()
	if err != nil {
		return err
	}
	if !t.held[id] {
		return fmt.Errorf("%v: %w", id, ErrNotHeld)
	}
	if err := rangelock.Unlock(t.f, off); err != nil {
		return err
	}
	delete(t.held, id)
	return nil
}

// Held reports whether this handle holds id.
func (t *Table) Held(id ID) bool { return t.held[id] }

// AcquireUserSlot scans the user slots and locks the first free one. The
// returned slot index is the caller's client id for the session.
func (t *Table) AcquireUserSlot() (int, error) {
	for slot := 0; slot < MaxUsers; slot++ {
		err := t.TryLock(User(slot))
		if err == nil {
			t.userSlot = slot
			return slot, nil
		}
		if !errors.Is(err, ErrLockFailed) {
			return -1, err
		}
	}
	return -1, ErrNoFreeSlot
}

// UserSlot returns the slot acquired by AcquireUserSlot, or -1.
func (t *Table) UserSlot() int { return t.userSlot }

// ReleaseUserSlot unlocks the slot acquired by AcquireUserSlot.
func (t *Table) ReleaseUserSlot() error {
	if t.userSlot < 0 {
		return ErrNotHeld
	}
	if err := t.Unlock(User(t.userSlot)); err != nil {
		return err
	}
	t.userSlot = -1
	return nil
}

// Close releases every held lock and closes the control file.
func (t *Table) Close() error {
	if t.f == nil {
		return nil
	}
	for id := range t.held {
		if off, err := id.offset(); err == nil {
			rangelock.Unlock(t.f, off)
		}
	}
	t.held = make(map[ID]bool)
	t.userSlot = -1
	err := t.f.Close()
	t.f = nil
	return err
}
