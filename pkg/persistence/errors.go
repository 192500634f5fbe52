package persistence

import (
	"fmt"
)

// OptimisticLockingError reports logical operations that lost a concurrent
// modification race. Expected under contention; the caller retries the
// logical command rather than treating this as fatal.
type OptimisticLockingError struct {
	Operations []*Operation
}

func (e *OptimisticLockingError) Error() string {
	if len(e.Operations) == 1 {
		return fmt.Sprintf("optimistic locking: concurrent modification of %s", e.Operations[0])
	}
	return fmt.Sprintf("optimistic locking: concurrent modification of %d operations, first %s",
		len(e.Operations), e.Operations[0])
}

// PersistenceError reports an unexpected driver or contract failure. Not
// locally recoverable; propagated to the caller.
type PersistenceError struct {
	Operation *Operation
	Cause     error
}

func (e *PersistenceError) Error() string {
	if e.Operation != nil {
		return fmt.Sprintf("persistence failure on %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("persistence failure: %v", e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
