package batch

import (
	"fmt"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/engine"
)

// Handler type tags for the batch orchestration jobs.
const (
	TypeBatchSeed    = "batch-seed"
	TypeBatchMonitor = "batch-monitor"
)

// SeedHandler runs the seed job of a batch: each invocation fans out one
// chunk of execution jobs and re-inserts itself until the batch is fully
// seeded, then hands over to the monitor job. The monitor job carries no due
// date so a small batch completes without waiting a full poll interval.
type SeedHandler struct{}

func NewSeedHandler() *SeedHandler { return &SeedHandler{} }

func (h *SeedHandler) Type() string { return TypeBatchSeed }

// NewConfiguration parses the seed job's payload, which is the batch id.
func (h *SeedHandler) NewConfiguration(canonical string) (engine.Configuration, error) {
	return engine.StringConfiguration(canonical), nil
}

func (h *SeedHandler) Execute(c *engine.CommandContext, cfg engine.Configuration, job *core.Job) error {
	batchID := cfg.ToCanonicalString()
	b, err := c.Batches.FindByID(batchID)
	if err != nil {
		return err
	}
	if b == nil {
		// A seed job without its batch is a consistency violation, never a
		// benign race: the seed is created in the same transaction as the
		// batch and deleted with it.
		return &core.BatchNotFoundError{BatchID: batchID}
	}

	handler, ok := c.Registry().Batch(b.Type)
	if !ok {
		return fmt.Errorf("%w: no batch handler for type %q", core.ErrUnknownHandler, b.Type)
	}

	done, err := handler.CreateJobs(c, b)
	if err != nil {
		return err
	}

	decl := engine.JobDeclaration{TenantID: b.TenantID}
	if done {
		decl.HandlerType = TypeBatchMonitor
		decl.JobDefinitionID = b.MonitorJobDefinitionID
	} else {
		decl.HandlerType = TypeBatchSeed
		decl.JobDefinitionID = b.SeedJobDefinitionID
	}
	c.Jobs.Insert(decl.Create(engine.StringConfiguration(b.ID), nil))
	return nil
}
