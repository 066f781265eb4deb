// Package rangelock provides exclusive advisory byte-range locks on a shared
// control file, with per-platform implementations.
//
// One lock covers exactly one byte at a caller-chosen offset; offsets act as
// lock identifiers shared across cooperating processes. On Unix platforms
// locks are open-file-description locks, so two handles on the same file
// conflict even when they belong to the same process.
package rangelock

import "errors"

// ErrWouldBlock is returned by TryLock when another holder owns the range.
var ErrWouldBlock = errors.New("rangelock: range already locked")
