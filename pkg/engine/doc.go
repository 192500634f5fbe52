// Package engine provides the command boundary and the durable job store.
//
// This package contains:
//   - CommandExecutor: one command, one transaction, exactly one flush
//   - JobManager, JobDefinitionManager, BatchManager: reads go straight to
//     the database, writes are staged on the command's session
//   - JobHandler / BatchJobHandler contracts and the HandlerRegistry
//   - JobDeclaration: the factory binding a handler type to new job rows
//   - RecurringHandler: a handler that reinserts its own successor
//
// Most users should import the root package github.com/perluxo/batchjobs
// instead of this package directly.
package engine
