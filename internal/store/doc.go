// Package store keeps query-history sessions in SQLite.
//
// The store holds:
//   - Sessions: one per editing session, identified by a UUIDv7 token
//   - History entries: admitted graph snapshots keyed by (session_id, seq)
//
// Entries are append-only apart from the embedding column, which is filled
// in after admission. Only the id summary of each diff is stored; LoadHistory
// recomputes them from consecutive snapshots, so a reloaded history matches
// the one that was written.
//
// # Ordering
//
// All reads are deterministic: entries ORDER BY seq ASC, sessions
// ORDER BY created_at ASC, id COLLATE BINARY ASC.
//
// # Connection
//
// Open pins the pool to one connection (SQLite allows a single writer, and
// each ":memory:" connection is its own database), turns on WAL and foreign
// keys, and waits up to five seconds on a locked database. Schema upgrades
// are numbered by PRAGMA user_version.
package store
