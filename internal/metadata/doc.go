// Package metadata persists one row per collected image in SQLite.
//
// Rows are keyed by the numeric item identifier (Discord message id or frame
// timestamp) so the highest stored id doubles as the resumption cursor for the
// next run. Inserts accumulate in a pending transaction that callers flush with
// Commit at their chosen cadence; Close flushes whatever is left.
package metadata
