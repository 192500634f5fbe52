// Package persistence provides the flush engine: staged entity operations
// applied to the database in one pass, with per-operation reconciliation of
// the driver result.
//
// This package contains:
//   - Operation: a staged insert/update/delete, single-row or bulk
//   - Executor: the driver contract, including the batched result shapes
//   - Flusher: the two flush strategies and the shared reconciliation
//   - Session: ordered staging of operations for one transaction
//   - GormExecutor: the GORM-backed Executor implementation
//
// A row count of zero on a revision-checked update or delete is an optimistic
// locking failure, never a silently dropped write; the flush always produces
// the complete applied/failed/remaining partition.
package persistence
