package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/perluxo/batchjobs/pkg/core"
)

// GormExecutor applies operations through a GORM transaction.
//
// Its ExecBatch executes statements one at a time inside the transaction, so
// every slot carries an exact row count (RowsUnknown never occurs) and a
// failure is reported in the stop-early shape of the contract.
type GormExecutor struct {
	tx *gorm.DB
}

// NewGormExecutor wraps the given transaction handle.
func NewGormExecutor(tx *gorm.DB) *GormExecutor {
	return &GormExecutor{tx: tx}
}

func (e *GormExecutor) Exec(ctx context.Context, op *Operation) (int64, error) {
	tx := e.tx.WithContext(ctx)

	switch op.Type {
	case OperationInsert:
		result := tx.Create(op.Entity)
		return result.RowsAffected, result.Error

	case OperationUpdate:
		values := op.Entity.PersistentState()
		if v, ok := op.Entity.(core.Versioned); ok {
			revision := v.EntityRevision()
			values["revision"] = revision + 1
			result := tx.Model(op.Entity).Where("revision = ?", revision).Updates(values)
			return result.RowsAffected, result.Error
		}
		result := tx.Model(op.Entity).Updates(values)
		return result.RowsAffected, result.Error

	case OperationDelete:
		if v, ok := op.Entity.(core.Versioned); ok {
			result := tx.Where("revision = ?", v.EntityRevision()).Delete(op.Entity)
			return result.RowsAffected, result.Error
		}
		result := tx.Delete(op.Entity)
		return result.RowsAffected, result.Error

	default: // bulk update or delete
		result := tx.Exec(op.Statement, op.Args...)
		return result.RowsAffected, result.Error
	}
}

func (e *GormExecutor) ExecBatch(ctx context.Context, ops []*Operation) ([]int64, error) {
	counts := make([]int64, 0, len(ops))
	for _, op := range ops {
		rows, err := e.Exec(ctx, op)
		if err != nil {
			return nil, &BatchError{Counts: counts, Cause: err}
		}
		counts = append(counts, rows)
	}
	return counts, nil
}
