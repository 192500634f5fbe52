package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/perluxo/batchjobs/pkg/core"
)

// Configuration is the deserialized, handler-specific job payload. The
// canonical string form is what gets persisted on the job row.
type Configuration interface {
	ToCanonicalString() string
}

// StringConfiguration is a plain opaque configuration string, typically an
// owning-entity id.
type StringConfiguration string

func (s StringConfiguration) ToCanonicalString() string { return string(s) }

// JobHandler executes jobs of one type. Handlers run inside the job's
// command, so every write they stage commits or rolls back with the job.
type JobHandler interface {
	Type() string
	Execute(c *CommandContext, cfg Configuration, job *core.Job) error
	NewConfiguration(canonical string) (Configuration, error)
}

// BatchJobHandler is the capability superset for handlers that drive a
// batch: besides executing one chunk, it creates execution jobs from the
// unconsumed configuration and cleans them up on batch deletion.
type BatchJobHandler interface {
	JobHandler

	// CreateJobs creates up to batch.BatchJobsPerSeed execution jobs from the
	// unconsumed configuration, advancing batch.JobsCreated. It reports true
	// once no work remains.
	CreateJobs(c *CommandContext, batch *core.Batch) (done bool, err error)

	// DeleteJobs removes all execution jobs of the batch.
	DeleteJobs(c *CommandContext, batch *core.Batch) error

	// JobDeclaration returns the declaration used for the batch's execution
	// jobs.
	JobDeclaration() *JobDeclaration
}

// HandlerRegistry maps job type tags to handlers. It is constructed once at
// startup and immutable afterwards; there is no ambient global registry.
type HandlerRegistry struct {
	handlers map[string]JobHandler
}

// NewHandlerRegistry builds a registry from the given handlers. A duplicate
// type tag panics, since it is a wiring bug.
func NewHandlerRegistry(handlers ...JobHandler) *HandlerRegistry {
	m := make(map[string]JobHandler, len(handlers))
	for _, h := range handlers {
		if _, dup := m[h.Type()]; dup {
			panic("batchjobs: duplicate handler registered for type " + h.Type())
		}
		m[h.Type()] = h
	}
	return &HandlerRegistry{handlers: m}
}

// Get looks up the handler for a job type.
func (r *HandlerRegistry) Get(jobType string) (JobHandler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}

// Batch looks up a handler that has the batch capability set.
func (r *HandlerRegistry) Batch(jobType string) (BatchJobHandler, bool) {
	h, ok := r.handlers[jobType]
	if !ok {
		return nil, false
	}
	bh, ok := h.(BatchJobHandler)
	return bh, ok
}

// JobDeclaration is a factory for jobs of one handler type bound to a job
// definition. Declarations carry the static attributes; the configuration
// and due date vary per created job.
type JobDeclaration struct {
	HandlerType     string
	JobDefinitionID string
	Retries         int
	Priority        int64
	TenantID        string
}

// Create builds a new job row. A nil due date means the job is immediately
// due.
func (d *JobDeclaration) Create(cfg Configuration, dueDate *time.Time) *core.Job {
	retries := d.Retries
	if retries <= 0 {
		retries = core.DefaultRetries
	}
	job := &core.Job{
		ID:              uuid.New().String(),
		Revision:        1,
		HandlerType:     d.HandlerType,
		JobDefinitionID: d.JobDefinitionID,
		Retries:         retries,
		Priority:        d.Priority,
		DueDate:         dueDate,
		SuspensionState: core.SuspensionStateActive,
		TenantID:        d.TenantID,
	}
	if cfg != nil {
		job.HandlerConfig = cfg.ToCanonicalString()
	}
	return job
}
