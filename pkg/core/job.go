package core

import (
	"time"
)

// DefaultRetries is the number of execution attempts a new job gets unless
// its declaration says otherwise.
const DefaultRetries = 3

// Job represents a durable unit of deferred work.
//
// A job is acquirable when it is due, not locked (or its lock has expired),
// not suspended and still has retries left. All coordination between
// competing executors happens through the lock and revision columns; there is
// no in-memory lock.
type Job struct {
	ID                 string          `gorm:"primaryKey;size:36"`
	Revision           int             `gorm:"not null;default:1"`
	DueDate            *time.Time      `gorm:"index"`
	LockOwner          string          `gorm:"index;size:255"`
	LockExpirationTime *time.Time      `gorm:"index"`
	Retries            int             `gorm:"not null;default:3"`
	ExceptionMessage   string          `gorm:"type:text"`
	HandlerType        string          `gorm:"index;size:255;not null"`
	HandlerConfig      string          `gorm:"type:text"`
	JobDefinitionID    string          `gorm:"index;size:36"`
	Priority           int64           `gorm:"index;not null;default:0"`
	SuspensionState    SuspensionState `gorm:"not null;default:1"`
	TenantID           string          `gorm:"index;size:64"`
	CreatedAt          time.Time       `gorm:"autoCreateTime"`
}

func (j *Job) EntityID() string { return j.ID }

func (j *Job) EntityRevision() int { return j.Revision }

func (j *Job) SetEntityRevision(revision int) { j.Revision = revision }

// PersistentState lists the mutable columns written on update.
func (j *Job) PersistentState() map[string]any {
	return map[string]any{
		"due_date":             j.DueDate,
		"lock_owner":           j.LockOwner,
		"lock_expiration_time": j.LockExpirationTime,
		"retries":              j.Retries,
		"exception_message":    j.ExceptionMessage,
		"handler_config":       j.HandlerConfig,
		"priority":             j.Priority,
		"suspension_state":     j.SuspensionState,
	}
}

// Acquirable reports whether the job may be claimed at the given instant.
func (j *Job) Acquirable(now time.Time) bool {
	if j.SuspensionState != SuspensionStateActive || j.Retries <= 0 {
		return false
	}
	if j.DueDate != nil && j.DueDate.After(now) {
		return false
	}
	if j.LockOwner != "" && j.LockExpirationTime != nil && j.LockExpirationTime.After(now) {
		return false
	}
	return true
}

// Lock claims the job for the given owner until the expiration instant.
func (j *Job) Lock(owner string, expiration time.Time) {
	j.LockOwner = owner
	j.LockExpirationTime = &expiration
}

// Unlock clears the lock so the job becomes acquirable again.
func (j *Job) Unlock() {
	j.LockOwner = ""
	j.LockExpirationTime = nil
}

// SetRetries clamps negative values to zero; a job with zero retries is a
// terminal failure record and is never acquired again.
func (j *Job) SetRetries(retries int) {
	if retries < 0 {
		retries = 0
	}
	j.Retries = retries
}
