// Package storage persists task records.
//
// Drivers:
//   - memory: process-local, for tests and dry runs
//   - file:   JSON snapshot plus an append-only journal
//   - sqlite: database/sql over modernc.org/sqlite, schema managed by darwin
//   - redis:  one hash per task plus an id-ordered sorted set
//
// Every driver lists tasks in ascending id order and Save touches only the
// run-state columns (execute_times, last_executed_at).
package storage
