package persistence

import (
	"context"

	"github.com/perluxo/batchjobs/pkg/core"
)

// Session stages entity operations for one transaction. Operations are
// flushed in insert, update, delete order; within each group, staging order
// is preserved. A command stages its writes through the session and ends with
// exactly one Flush.
type Session struct {
	flusher *Flusher

	inserts []*Operation
	updates []*Operation
	deletes []*Operation

	listeners []OptimisticLockingListener
}

// NewSession creates an empty session flushing through the given flusher.
func NewSession(flusher *Flusher) *Session {
	return &Session{flusher: flusher}
}

// Insert stages an entity insert and returns the staged operation.
func (s *Session) Insert(e core.Entity) *Operation {
	op := Insert(e)
	s.inserts = append(s.inserts, op)
	return op
}

// Update stages an entity update, revision-checked for versioned entities.
func (s *Session) Update(e core.Entity) *Operation {
	op := Update(e)
	s.updates = append(s.updates, op)
	return op
}

// Delete stages an entity delete, revision-checked for versioned entities.
func (s *Session) Delete(e core.Entity) *Operation {
	op := Delete(e)
	s.deletes = append(s.deletes, op)
	return op
}

// BulkUpdate stages a raw update statement.
func (s *Session) BulkUpdate(statement string, args ...any) *Operation {
	op := BulkUpdate(statement, args...)
	s.updates = append(s.updates, op)
	return op
}

// BulkDelete stages a raw delete statement.
func (s *Session) BulkDelete(statement string, args ...any) *Operation {
	op := BulkDelete(statement, args...)
	s.deletes = append(s.deletes, op)
	return op
}

// OnOptimisticLockingFailure registers a listener consulted before a
// concurrent modification failure is surfaced.
func (s *Session) OnOptimisticLockingFailure(l OptimisticLockingListener) {
	s.listeners = append(s.listeners, l)
}

// Pending reports whether any operations are staged.
func (s *Session) Pending() bool {
	return len(s.inserts)+len(s.updates)+len(s.deletes) > 0
}

// Flush applies all staged operations and clears the session.
func (s *Session) Flush(ctx context.Context) error {
	ops := make([]*Operation, 0, len(s.inserts)+len(s.updates)+len(s.deletes))
	ops = append(ops, s.inserts...)
	ops = append(ops, s.updates...)
	ops = append(ops, s.deletes...)
	s.inserts, s.updates, s.deletes = nil, nil, nil

	if len(ops) == 0 {
		return nil
	}
	return s.flusher.Flush(ctx, ops, s.listeners)
}
