package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FlushMode selects the execution strategy.
type FlushMode string

const (
	// FlushSequential applies operations one statement at a time and stops at
	// the first failure, returning the untouched remainder.
	FlushSequential FlushMode = "sequential"

	// FlushBatched sends operations as one batch round trip and reconciles
	// the per-slot results.
	FlushBatched FlushMode = "batched"
)

// OptimisticLockingResult is a listener's verdict on a concurrent
// modification failure.
type OptimisticLockingResult int

const (
	// LockingThrow surfaces the failure as an OptimisticLockingError.
	LockingThrow OptimisticLockingResult = iota

	// LockingIgnore tolerates the failure; the operation is skipped. Used by
	// job acquisition, where a lost lock race means another acquirer won.
	LockingIgnore
)

// OptimisticLockingListener inspects a failed operation and decides whether
// the flush may continue without it.
type OptimisticLockingListener func(op *Operation) OptimisticLockingResult

// FlushResult is the complete partition of one strategy invocation.
type FlushResult struct {
	Applied   []*Operation
	Failed    []*Operation
	Remaining []*Operation
}

// Flusher drives staged operations to the datastore and reconciles the
// outcome per operation.
type Flusher struct {
	exec   Executor
	mode   FlushMode
	logger *slog.Logger
}

// NewFlusher creates a flusher using the given executor and strategy.
func NewFlusher(exec Executor, mode FlushMode) *Flusher {
	return &Flusher{exec: exec, mode: mode, logger: slog.Default()}
}

// Flush applies all operations. Concurrent modification failures not ignored
// by a listener surface as *OptimisticLockingError; driver failures surface
// as *PersistenceError. Operations left over by a partial strategy invocation
// are retried until none remain.
func (f *Flusher) Flush(ctx context.Context, ops []*Operation, listeners []OptimisticLockingListener) error {
	remaining := ops
	for len(remaining) > 0 {
		var result FlushResult
		var err error
		switch f.mode {
		case FlushBatched:
			result, err = f.flushBatched(ctx, remaining)
		default:
			result, err = f.flushSequential(ctx, remaining)
		}
		if err != nil {
			return err
		}

		var conflicts []*Operation
		for _, failed := range result.Failed {
			switch failed.State {
			case StateFailedConcurrentModification:
				if invokeListeners(listeners, failed) == LockingIgnore {
					f.logger.Debug("ignoring concurrent modification", "operation", failed.String())
					continue
				}
				conflicts = append(conflicts, failed)
			case StateFailedError:
				return &PersistenceError{Operation: failed, Cause: failed.Failure}
			default:
				return fmt.Errorf("persistence: operation %s failed in state %q, this indicates a bug", failed, failed.State)
			}
		}
		if len(conflicts) > 0 {
			return &OptimisticLockingError{Operations: conflicts}
		}

		// Guard against a strategy that makes no progress.
		if len(result.Remaining) >= len(remaining) {
			return errors.New("persistence: flush did not process any operations, this indicates a bug")
		}
		remaining = result.Remaining
	}
	return nil
}

// flushSequential applies operations one at a time. The first failure of any
// kind stops the pass; the remainder is reported untouched.
func (f *Flusher) flushSequential(ctx context.Context, ops []*Operation) (FlushResult, error) {
	var result FlushResult
	for i, op := range ops {
		rows, err := f.exec.Exec(ctx, op)
		if err != nil {
			op.State = StateFailedError
			op.Failure = err
			result.Failed = append(result.Failed, op)
			markNotApplied(ops[i+1:], &result)
			return result, nil
		}
		reconcile(op, rows)
		if op.State == StateApplied {
			result.Applied = append(result.Applied, op)
		} else {
			result.Failed = append(result.Failed, op)
			markNotApplied(ops[i+1:], &result)
			return result, nil
		}
	}
	return result, nil
}

// flushBatched sends one batch round trip and reconciles the three result
// shapes of the executor contract.
func (f *Flusher) flushBatched(ctx context.Context, ops []*Operation) (FlushResult, error) {
	var result FlushResult
	counts, err := f.exec.ExecBatch(ctx, ops)

	if err == nil {
		if len(counts) != len(ops) {
			return result, fmt.Errorf("persistence: batch returned %d results for %d operations, this indicates a bug",
				len(counts), len(ops))
		}
		for i, op := range ops {
			if counts[i] == RowsFailed {
				return result, fmt.Errorf("persistence: batch reported a failed slot without an error for %s, this indicates a bug", op)
			}
			reconcile(op, counts[i])
			collect(op, &result)
		}
		return result, nil
	}

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		// Top level driver failure, no per-operation information.
		return result, &PersistenceError{Cause: err}
	}

	counts = batchErr.Counts
	switch {
	case len(counts) < len(ops):
		// The driver stopped at the first failing statement. Everything after
		// it shares the same root cause; per-statement sub-causes are not
		// assumed to be available (a known imprecision of the contract).
		for i := 0; i < len(counts); i++ {
			reconcile(ops[i], counts[i])
			collect(ops[i], &result)
		}
		for _, op := range ops[len(counts):] {
			op.State = StateFailedError
			op.Failure = batchErr.Cause
			result.Failed = append(result.Failed, op)
		}
	case len(counts) == len(ops):
		// The driver kept executing after failures and reports one slot per
		// operation.
		for i, op := range ops {
			if counts[i] == RowsFailed {
				op.State = StateFailedError
				op.Failure = batchErr.Cause
				result.Failed = append(result.Failed, op)
				continue
			}
			reconcile(op, counts[i])
			collect(op, &result)
		}
	default:
		return result, fmt.Errorf("persistence: batch returned %d results for %d operations, this indicates a bug",
			len(counts), len(ops))
	}
	return result, nil
}

// reconcile classifies a completed statement by its affected-row count.
func reconcile(op *Operation, rows int64) {
	if rows == RowsUnknown {
		if op.RequiresRowCount() {
			op.State = StateFailedError
			op.Failure = fmt.Errorf("driver reported no row count for %s, which requires affected-row verification", op)
			return
		}
		op.State = StateApplied
		return
	}

	op.RowsAffected = rows

	if op.Bulk() {
		// Bulk row counts are informational only.
		op.State = StateApplied
		return
	}

	switch op.Type {
	case OperationInsert:
		if rows == 0 {
			op.State = StateFailedError
			op.Failure = fmt.Errorf("insert of %s affected zero rows", op)
			return
		}
		op.State = StateApplied
	case OperationUpdate, OperationDelete:
		v, checked := op.versioned()
		if rows == 0 {
			if checked {
				op.State = StateFailedConcurrentModification
				return
			}
			op.State = StateFailedError
			op.Failure = fmt.Errorf("%s affected zero rows", op)
			return
		}
		op.State = StateApplied
		if checked && op.Type == OperationUpdate {
			// The conditional write succeeded; advance our copy.
			v.SetEntityRevision(v.EntityRevision() + 1)
		}
	}
}

func collect(op *Operation, result *FlushResult) {
	if op.State == StateApplied {
		result.Applied = append(result.Applied, op)
	} else {
		result.Failed = append(result.Failed, op)
	}
}

func markNotApplied(ops []*Operation, result *FlushResult) {
	for _, op := range ops {
		op.State = StateNotApplied
		result.Remaining = append(result.Remaining, op)
	}
}

func invokeListeners(listeners []OptimisticLockingListener, op *Operation) OptimisticLockingResult {
	for _, l := range listeners {
		if l(op) == LockingIgnore {
			return LockingIgnore
		}
	}
	return LockingThrow
}
