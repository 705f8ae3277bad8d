// Package ledger records which (category, project) pairs of a build root have
// been satisfied. The ledger is the single source of truth for "already built":
// it persists across process invocations and is shared by every process pointed
// at the same build root.
//
// Two implementations are provided. SQLiteLedger stores entries in a SQLite
// database under the build root's state directory, using WAL mode, a busy
// timeout and immediate transactions so that concurrent processes see atomic
// per-entry reads and writes. MemoryLedger keeps entries in process memory and
// is intended for tests and embedding.
//
// Entries are append-only: Mark never revokes or overwrites an existing entry.
package ledger
