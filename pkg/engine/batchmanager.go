package engine

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/persistence"
)

// BatchManager is the per-command view of the batches table.
type BatchManager struct {
	tx      *gorm.DB
	session *persistence.Session
	jobs    *JobManager
}

// FindByID loads a batch, or nil without error when it does not exist.
func (m *BatchManager) FindByID(id string) (*core.Batch, error) {
	var batch core.Batch
	err := m.tx.First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindByType lists batches of one handler type.
func (m *BatchManager) FindByType(batchType string) ([]*core.Batch, error) {
	var batches []*core.Batch
	return batches, m.tx.Where("type = ?", batchType).Find(&batches).Error
}

// Insert stages a batch insert, assigning an id and revision if unset.
func (m *BatchManager) Insert(batch *core.Batch) {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Revision == 0 {
		batch.Revision = 1
	}
	if batch.SuspensionState == 0 {
		batch.SuspensionState = core.SuspensionStateActive
	}
	m.session.Insert(batch)
}

// Update stages a revision-checked batch update.
func (m *BatchManager) Update(batch *core.Batch) *persistence.Operation {
	return m.session.Update(batch)
}

// Delete removes the batch, its three job definitions and the orchestration
// jobs (seed and monitor). Execution jobs are the batch handler's
// responsibility; callers dispatch BatchJobHandler.DeleteJobs before this so
// handler-specific cleanup is never bypassed. excludeJobID spares one job
// row, used by the monitor handler whose own job is deleted by the executor
// after it returns.
//
// History cleanup is an external collaborator; the cascade decision is taken
// by the caller before this point.
func (m *BatchManager) Delete(batch *core.Batch, excludeJobID string) {
	if excludeJobID != "" {
		m.session.BulkDelete(
			"DELETE FROM jobs WHERE job_definition_id IN (?, ?) AND id <> ?",
			batch.SeedJobDefinitionID, batch.MonitorJobDefinitionID, excludeJobID)
	} else {
		m.session.BulkDelete(
			"DELETE FROM jobs WHERE job_definition_id IN (?, ?)",
			batch.SeedJobDefinitionID, batch.MonitorJobDefinitionID)
	}
	m.session.BulkDelete(
		"DELETE FROM job_definitions WHERE id IN (?, ?, ?)",
		batch.SeedJobDefinitionID, batch.MonitorJobDefinitionID, batch.BatchJobDefinitionID)
	m.session.Delete(batch)
}
