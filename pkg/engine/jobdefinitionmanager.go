package engine

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/persistence"
)

// JobDefinitionManager is the per-command view of the job definitions table.
type JobDefinitionManager struct {
	tx      *gorm.DB
	session *persistence.Session
}

// FindByID loads a definition, or nil without error when it does not exist.
func (m *JobDefinitionManager) FindByID(id string) (*core.JobDefinition, error) {
	var def core.JobDefinition
	err := m.tx.First(&def, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// Insert stages a definition insert, assigning an id and revision if unset.
func (m *JobDefinitionManager) Insert(def *core.JobDefinition) {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if def.Revision == 0 {
		def.Revision = 1
	}
	if def.SuspensionState == 0 {
		def.SuspensionState = core.SuspensionStateActive
	}
	m.session.Insert(def)
}

// Update stages a revision-checked definition update.
func (m *JobDefinitionManager) Update(def *core.JobDefinition) *persistence.Operation {
	return m.session.Update(def)
}

// Suspend marks the definition suspended so its jobs stop being acquirable,
// optionally suspending the existing jobs in bulk as well.
func (m *JobDefinitionManager) Suspend(def *core.JobDefinition, includeJobs bool, jobs *JobManager) {
	def.SuspensionState = core.SuspensionStateSuspended
	m.session.Update(def)
	if includeJobs {
		jobs.SuspendByDefinitionID(def.ID)
	}
}

// Activate reverses a suspension.
func (m *JobDefinitionManager) Activate(def *core.JobDefinition, includeJobs bool, jobs *JobManager) {
	def.SuspensionState = core.SuspensionStateActive
	m.session.Update(def)
	if includeJobs {
		jobs.ActivateByDefinitionID(def.ID)
	}
}
