package engine

import (
	"time"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/schedule"
)

// RecurringHandler runs a work function and, on success, inserts its own
// successor job due at the next point of its schedule. The successor is
// staged in the same transaction, so a crash either keeps the current job
// (retried later) or commits both the work and the next occurrence.
type RecurringHandler struct {
	handlerType string
	schedule    schedule.Schedule
	run         func(c *CommandContext, cfg Configuration, job *core.Job) error
	now         func() time.Time
}

// NewRecurringHandler creates a handler of the given type whose jobs
// reschedule themselves per the schedule.
func NewRecurringHandler(handlerType string, s schedule.Schedule,
	run func(c *CommandContext, cfg Configuration, job *core.Job) error) *RecurringHandler {
	return &RecurringHandler{handlerType: handlerType, schedule: s, run: run, now: time.Now}
}

func (h *RecurringHandler) Type() string { return h.handlerType }

func (h *RecurringHandler) NewConfiguration(canonical string) (Configuration, error) {
	return StringConfiguration(canonical), nil
}

func (h *RecurringHandler) Execute(c *CommandContext, cfg Configuration, job *core.Job) error {
	if err := h.run(c, cfg, job); err != nil {
		return err
	}

	next := h.schedule.Next(h.now())
	declaration := &JobDeclaration{
		HandlerType:     h.handlerType,
		JobDefinitionID: job.JobDefinitionID,
		Retries:         core.DefaultRetries,
		Priority:        job.Priority,
		TenantID:        job.TenantID,
	}
	c.Jobs.Insert(declaration.Create(cfg, &next))
	return nil
}
