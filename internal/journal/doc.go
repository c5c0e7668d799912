// Package journal records dispatch history in SQLite.
//
// A Journal is an engine.Observer. Every event the engine reports appends
// a row to transitions, and every dispatch gets one row in dispatches that
// tracks its latest outcome. Nested dispatches keep a parent_id link, so
// the tree of intents set off by one top-level emission can be walked
// back from any leaf.
//
// The journal is history only. It never feeds state back into an engine.
//
// # Ordering
//
// Rows are ordered by seq, the engine's logical clock, never by wall
// time. Queries use ORDER BY seq ASC, id ASC COLLATE BINARY. To keep seq
// unique across runs that share a database, start the engine's clock at
// LastSeq.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package journal
