package core

import "time"

// Batch is the orchestration record for a bulk operation decomposed into many
// execution jobs.
//
// JobsCreated is the high-water mark of execution jobs created so far and
// never exceeds TotalJobs. The batch is seed-complete once the two are equal
// and done once no execution job referencing BatchJobDefinitionID remains.
type Batch struct {
	ID                     string          `gorm:"primaryKey;size:36"`
	Revision               int             `gorm:"not null;default:1"`
	Type                   string          `gorm:"index;size:255;not null"`
	TotalJobs              int             `gorm:"not null"`
	JobsCreated            int             `gorm:"not null;default:0"`
	BatchJobsPerSeed       int             `gorm:"not null"`
	InvocationsPerBatchJob int             `gorm:"not null"`
	SeedJobDefinitionID    string          `gorm:"size:36"`
	MonitorJobDefinitionID string          `gorm:"size:36"`
	BatchJobDefinitionID   string          `gorm:"size:36"`
	Configuration          []byte          `gorm:"type:bytes"`
	SuspensionState        SuspensionState `gorm:"not null;default:1"`
	TenantID               string          `gorm:"index;size:64"`
	CreatedAt              time.Time       `gorm:"autoCreateTime"`
}

func (b *Batch) EntityID() string { return b.ID }

func (b *Batch) EntityRevision() int { return b.Revision }

func (b *Batch) SetEntityRevision(revision int) { b.Revision = revision }

func (b *Batch) PersistentState() map[string]any {
	return map[string]any{
		"jobs_created":     b.JobsCreated,
		"configuration":    b.Configuration,
		"suspension_state": b.SuspensionState,
	}
}

// SeedComplete reports whether every execution job has been created.
func (b *Batch) SeedComplete() bool {
	return b.JobsCreated >= b.TotalJobs
}
