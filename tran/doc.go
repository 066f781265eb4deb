// Package tran implements the transaction engine wrapping writes to shared
// table files: the transaction lifecycle, the write-ahead log, crash
// recovery, and the cooperative multi-user locking that serializes
// cooperating processes.
//
// Transaction protocol:
//  1. Start() - allocate a transaction id, append a Start marker
//  2. [table writes call RecordWrite/RecordAppend before mutating]
//  3. CommitPhaseOne() - append commit marker, flush durably
//  4. CommitPhaseTwo(mode) - flush participating tables, append final marker
//
// or, before phase one only:
//
//	Rollback() - undo every logged write in reverse order, append marker
//
// Phase one is the durability checkpoint. Once it returns nil the outcome
// is committed even across a crash: recovery run at the next Init will
// finish applying the transaction, never roll it back. Before phase one,
// Rollback may abort at any point. There is no partial-cancel path in
// between.
//
// State machine:
//
//	Off -> Active -> { phase one -> phase two -> Off } | { rollback -> Off }
//
// A Context holds at most one open transaction; one engine instance is a
// single writer. Concurrency exists only across OS processes sharing the
// same files and is serialized through the locktab package, not an
// internal scheduler. Any operation other than Start in the Off state
// fails with ErrNotActive.
//
// The engine is invoked synchronously by its host's call stack; there are
// no internal goroutines. The one suspension point is acquiring a lock
// identifier another process holds, which blocks at the OS lock primitive.
package tran
