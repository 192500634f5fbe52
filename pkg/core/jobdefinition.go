package core

import "time"

// JobDefinition is a named, queryable grouping for a class of jobs produced
// by one logical source. A batch owns three of them: seed, monitor and
// execution. Suspending a definition suspends both the template and, if
// requested, its existing jobs.
type JobDefinition struct {
	ID               string          `gorm:"primaryKey;size:36"`
	Revision         int             `gorm:"not null;default:1"`
	JobType          string          `gorm:"index;size:255;not null"`
	JobConfiguration string          `gorm:"size:255"`
	SuspensionState  SuspensionState `gorm:"not null;default:1"`
	TenantID         string          `gorm:"index;size:64"`
	CreatedAt        time.Time       `gorm:"autoCreateTime"`
}

func (d *JobDefinition) EntityID() string { return d.ID }

func (d *JobDefinition) EntityRevision() int { return d.Revision }

func (d *JobDefinition) SetEntityRevision(revision int) { d.Revision = revision }

func (d *JobDefinition) PersistentState() map[string]any {
	return map[string]any{
		"job_configuration": d.JobConfiguration,
		"suspension_state":  d.SuspensionState,
	}
}
