package persistence

import (
	"fmt"

	"github.com/perluxo/batchjobs/pkg/core"
)

// OperationType identifies what a staged operation does.
type OperationType string

const (
	OperationInsert     OperationType = "insert"
	OperationUpdate     OperationType = "update"
	OperationDelete     OperationType = "delete"
	OperationBulkUpdate OperationType = "bulk-update"
	OperationBulkDelete OperationType = "bulk-delete"
)

// OperationState is the reconciled outcome of a flushed operation.
type OperationState string

const (
	StatePending OperationState = "pending"

	StateApplied OperationState = "applied"

	// StateFailedConcurrentModification marks a revision-checked update or
	// delete that affected zero rows: another transaction won the race.
	StateFailedConcurrentModification OperationState = "failed-concurrent-modification"

	// StateFailedError marks a driver failure or a row count that the
	// operation's contract forbids. Not locally recoverable.
	StateFailedError OperationState = "failed-error"

	// StateNotApplied marks an operation the flush never attempted.
	StateNotApplied OperationState = "not-applied"
)

// Operation is one staged database write. Entity operations carry the entity
// snapshot; bulk operations carry a statement affecting an unbounded row set
// and never participate in optimistic locking.
type Operation struct {
	Type      OperationType
	Entity    core.Entity
	Statement string
	Args      []any

	RowsAffected int64
	State        OperationState
	Failure      error
}

// Insert stages an entity insert.
func Insert(e core.Entity) *Operation {
	return &Operation{Type: OperationInsert, Entity: e, State: StatePending}
}

// Update stages an entity update. Versioned entities are written
// conditionally on their current revision.
func Update(e core.Entity) *Operation {
	return &Operation{Type: OperationUpdate, Entity: e, State: StatePending}
}

// Delete stages an entity delete, revision-checked for versioned entities.
func Delete(e core.Entity) *Operation {
	return &Operation{Type: OperationDelete, Entity: e, State: StatePending}
}

// BulkUpdate stages a raw update statement. The row count is informational.
func BulkUpdate(statement string, args ...any) *Operation {
	return &Operation{Type: OperationBulkUpdate, Statement: statement, Args: args, State: StatePending}
}

// BulkDelete stages a raw delete statement. The row count is informational.
func BulkDelete(statement string, args ...any) *Operation {
	return &Operation{Type: OperationBulkDelete, Statement: statement, Args: args, State: StatePending}
}

// Bulk reports whether the operation affects an unbounded row set.
func (op *Operation) Bulk() bool {
	return op.Type == OperationBulkUpdate || op.Type == OperationBulkDelete
}

// versioned returns the entity's revision contract, if it has one.
func (op *Operation) versioned() (core.Versioned, bool) {
	v, ok := op.Entity.(core.Versioned)
	return v, ok
}

// RequiresRowCount reports whether the operation cannot be reconciled without
// an exact affected-row count. Revision-checked updates and deletes need the
// count to detect lost races; inserts and bulk operations do not.
func (op *Operation) RequiresRowCount() bool {
	if op.Type != OperationUpdate && op.Type != OperationDelete {
		return false
	}
	_, ok := op.versioned()
	return ok
}

func (op *Operation) String() string {
	if op.Entity != nil {
		return fmt.Sprintf("%s %T[%s]", op.Type, op.Entity, op.Entity.EntityID())
	}
	return fmt.Sprintf("%s %q", op.Type, op.Statement)
}
