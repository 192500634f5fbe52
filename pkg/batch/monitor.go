package batch

import (
	"log/slog"
	"time"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/engine"
)

// MonitorHandler polls a batch for completion. Completion is a count query
// over every job row referencing the batch's execution job definition; a job
// that is merely unlocked or due in the future still counts as outstanding.
// While jobs remain, the monitor reschedules itself one poll interval out;
// once none remain, it deletes the batch and its definitions.
type MonitorHandler struct {
	pollTime time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewMonitorHandler(pollTime time.Duration) *MonitorHandler {
	return &MonitorHandler{pollTime: pollTime, logger: slog.Default(), now: time.Now}
}

func (h *MonitorHandler) Type() string { return TypeBatchMonitor }

// NewConfiguration parses the monitor job's payload, which is the batch id.
func (h *MonitorHandler) NewConfiguration(canonical string) (engine.Configuration, error) {
	return engine.StringConfiguration(canonical), nil
}

func (h *MonitorHandler) Execute(c *engine.CommandContext, cfg engine.Configuration, job *core.Job) error {
	batchID := cfg.ToCanonicalString()
	b, err := c.Batches.FindByID(batchID)
	if err != nil {
		return err
	}
	if b == nil {
		// The batch was removed, e.g. by a user-initiated delete, between
		// scheduling this monitor run and executing it. Nothing left to do.
		h.logger.Debug("batch already removed, monitor run is a no-op", "batch_id", batchID)
		return nil
	}

	outstanding, err := c.Jobs.CountByDefinitionID(b.BatchJobDefinitionID)
	if err != nil {
		return err
	}
	if outstanding > 0 {
		due := h.now().Add(h.pollTime)
		decl := engine.JobDeclaration{
			HandlerType:     TypeBatchMonitor,
			JobDefinitionID: b.MonitorJobDefinitionID,
			TenantID:        b.TenantID,
		}
		c.Jobs.Insert(decl.Create(engine.StringConfiguration(b.ID), &due))
		return nil
	}

	// Done. The handler's own cleanup runs even though the count query came
	// back empty, so it can drop any handler-specific residue. The currently
	// executing monitor job is excluded from the bulk delete; the executor
	// removes it when this command commits.
	if err := deleteJobs(c, b); err != nil {
		return err
	}
	c.Batches.Delete(b, job.ID)
	return nil
}
