// Package store provides the database backend that executes compiled
// modify-plan datasets.
//
// The store owns:
//   - the connection (SQLite by default, PostgreSQL via lib/pq)
//   - a bounded cache of prepared statements keyed by SQL text
//   - the key_sequences table used to allocate content and child ids
//   - the change_log table recording every executed or skipped step
//
// Content tables themselves are created from compiled DDL through
// EnsureTables; the store never interprets their shape.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// SQLite runs with a single open connection. Statements must therefore be
// prepared (Store.Prepare) before a transaction starts; inside a transaction
// a cache miss is prepared on the transaction itself and not cached.
//
// # Deterministic Query Results
//
// Change log reads are ordered by seq ASC, then step index ASC, so the same
// request history always reads back in the same order.
package store
