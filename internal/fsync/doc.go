// Package fsync provides durable-flush primitives with per-platform
// implementations.
//
// Datasync is the data-only flush used after ordinary log appends; Full is
// the strongest flush the platform offers (F_FULLFSYNC on macOS), used at
// the phase-one commit barrier where durability is the correctness anchor
// for crash recovery.
package fsync
