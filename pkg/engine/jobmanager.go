package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/persistence"
)

// JobManager is the per-command view of the jobs table. Reads go straight to
// the transaction; writes are staged on the session and applied by the
// command's single flush.
type JobManager struct {
	tx      *gorm.DB
	session *persistence.Session
}

// FindByID loads a job, or returns nil without error when it does not exist.
func (m *JobManager) FindByID(id string) (*core.Job, error) {
	var job core.Job
	err := m.tx.First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindAcquirable returns up to limit jobs that are due, unlocked (or with an
// expired lock), active and still have retries, ordered by priority then due
// date. Candidates only; the caller must still win the conditional lock
// write per job.
func (m *JobManager) FindAcquirable(now time.Time, limit int) ([]*core.Job, error) {
	var jobs []*core.Job
	err := m.tx.
		Where("suspension_state = ?", core.SuspensionStateActive).
		Where("retries > 0").
		Where("(due_date IS NULL OR due_date <= ?)", now).
		Where("(lock_owner IS NULL OR lock_owner = '' OR lock_expiration_time < ?)", now).
		// NULL due dates sort as immediately due. COALESCE keeps the order
		// identical on sqlite and postgres, which disagree on NULL placement.
		Order("priority DESC, COALESCE(due_date, '1970-01-01 00:00:00') ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// CountByDefinitionID counts every job row referencing the definition,
// regardless of lock or due-date state.
func (m *JobManager) CountByDefinitionID(definitionID string) (int64, error) {
	var count int64
	err := m.tx.Model(&core.Job{}).
		Where("job_definition_id = ?", definitionID).
		Count(&count).Error
	return count, err
}

// FindByDefinitionID lists jobs of one definition, unordered.
func (m *JobManager) FindByDefinitionID(definitionID string, limit int) ([]*core.Job, error) {
	var jobs []*core.Job
	q := m.tx.Where("job_definition_id = ?", definitionID)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return jobs, q.Find(&jobs).Error
}

// FindByHandlerType lists jobs of one handler type, unordered.
func (m *JobManager) FindByHandlerType(handlerType string, limit int) ([]*core.Job, error) {
	var jobs []*core.Job
	q := m.tx.Where("handler_type = ?", handlerType)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return jobs, q.Find(&jobs).Error
}

// Insert stages a job insert, assigning an id and revision if unset.
func (m *JobManager) Insert(job *core.Job) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Revision == 0 {
		job.Revision = 1
	}
	if job.SuspensionState == 0 {
		job.SuspensionState = core.SuspensionStateActive
	}
	m.session.Insert(job)
}

// Update stages a revision-checked job update and returns the staged
// operation so the caller can inspect its reconciled outcome after flush.
func (m *JobManager) Update(job *core.Job) *persistence.Operation {
	return m.session.Update(job)
}

// Delete stages a revision-checked job delete.
func (m *JobManager) Delete(job *core.Job) *persistence.Operation {
	return m.session.Delete(job)
}

// DeleteByDefinitionID stages a bulk delete of every job of a definition.
func (m *JobManager) DeleteByDefinitionID(definitionID string) {
	m.session.BulkDelete("DELETE FROM jobs WHERE job_definition_id = ?", definitionID)
}

// SuspendByDefinitionID stages a bulk suspension of every job of a
// definition.
func (m *JobManager) SuspendByDefinitionID(definitionID string) {
	m.session.BulkUpdate("UPDATE jobs SET suspension_state = ? WHERE job_definition_id = ?",
		core.SuspensionStateSuspended, definitionID)
}

// ActivateByDefinitionID stages a bulk activation of every job of a
// definition.
func (m *JobManager) ActivateByDefinitionID(definitionID string) {
	m.session.BulkUpdate("UPDATE jobs SET suspension_state = ? WHERE job_definition_id = ?",
		core.SuspensionStateActive, definitionID)
}
