package persistence

import (
	"context"
	"fmt"
)

// Row-count markers mirrored from the batched-driver contract.
const (
	// RowsUnknown fills a batch slot that was executed through a native bulk
	// path that does not report an affected-row count. Legal only for
	// operations that do not require row-count verification.
	RowsUnknown int64 = -2

	// RowsFailed fills a batch slot that failed while the driver kept
	// executing the remainder of the batch.
	RowsFailed int64 = -3
)

// Executor applies operations to the datastore.
//
// ExecBatch sends all operations in one round trip where the driver supports
// it. On full success it returns one affected-row count per operation in
// submission order. On a statement-level failure it returns a *BatchError in
// one of two shapes:
//
//   - stopped early: Counts holds the counts of the operations executed
//     before the failing one; everything from index len(Counts) onward was
//     not executed cleanly and shares the same root cause
//   - continued executing: Counts holds one slot per operation, with
//     RowsFailed marking the slots that failed
//
// Any other error is a top-level driver failure with no per-operation
// information.
type Executor interface {
	Exec(ctx context.Context, op *Operation) (int64, error)
	ExecBatch(ctx context.Context, ops []*Operation) ([]int64, error)
}

// BatchError reports a batch round trip that failed at the statement level
// but still carries partial per-operation results.
type BatchError struct {
	Counts []int64
	Cause  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch execution failed after %d result(s): %v", len(e.Counts), e.Cause)
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}
