package batch

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/engine"
)

// CreateRequest describes a new batch. Configuration carries the target ids
// and the handler parameters; the chunking knobs usually come straight from
// the engine configuration.
type CreateRequest struct {
	Type                   string
	Configuration          Payload
	BatchJobsPerSeed       int
	InvocationsPerBatchJob int
	TenantID               string
}

// Create stages a new batch inside the given command: the batch row, its
// seed, monitor and execution job definitions, and the first seed job. The
// command's flush persists all of it atomically.
//
// TotalJobs is fixed here as ceil(len(ids) / invocationsPerBatchJob); the
// seed fan-out consumes ids against the same rule, so the two never
// disagree.
func Create(c *engine.CommandContext, req CreateRequest) (*core.Batch, error) {
	if req.Configuration == nil {
		return nil, errors.New("batchjobs: batch configuration is required")
	}
	if _, ok := c.Registry().Batch(req.Type); !ok {
		return nil, fmt.Errorf("%w: no batch handler for type %q", core.ErrUnknownHandler, req.Type)
	}
	base := req.Configuration.base()
	if len(base.IDs) == 0 {
		return nil, errors.New("batchjobs: batch has no target ids")
	}
	if len(base.DeploymentMappings) > 0 && base.DeploymentMappings.TotalCount() != len(base.IDs) {
		return nil, fmt.Errorf("batchjobs: deployment mappings cover %d ids, batch has %d",
			base.DeploymentMappings.TotalCount(), len(base.IDs))
	}
	if req.InvocationsPerBatchJob < 1 {
		return nil, errors.New("batchjobs: invocations per batch job must be positive")
	}
	if req.BatchJobsPerSeed < 1 {
		return nil, errors.New("batchjobs: batch jobs per seed must be positive")
	}

	batchID := uuid.New().String()
	base.BatchID = batchID

	seedDef := &core.JobDefinition{
		ID: uuid.New().String(), JobType: TypeBatchSeed,
		JobConfiguration: batchID, TenantID: req.TenantID,
	}
	monitorDef := &core.JobDefinition{
		ID: uuid.New().String(), JobType: TypeBatchMonitor,
		JobConfiguration: batchID, TenantID: req.TenantID,
	}
	executionDef := &core.JobDefinition{
		ID: uuid.New().String(), JobType: req.Type,
		JobConfiguration: batchID, TenantID: req.TenantID,
	}
	c.JobDefinitions.Insert(seedDef)
	c.JobDefinitions.Insert(monitorDef)
	c.JobDefinitions.Insert(executionDef)

	totalJobs := (len(base.IDs) + req.InvocationsPerBatchJob - 1) / req.InvocationsPerBatchJob
	b := &core.Batch{
		ID:                     batchID,
		Type:                   req.Type,
		TotalJobs:              totalJobs,
		BatchJobsPerSeed:       req.BatchJobsPerSeed,
		InvocationsPerBatchJob: req.InvocationsPerBatchJob,
		SeedJobDefinitionID:    seedDef.ID,
		MonitorJobDefinitionID: monitorDef.ID,
		BatchJobDefinitionID:   executionDef.ID,
		Configuration:          []byte(req.Configuration.ToCanonicalString()),
		TenantID:               req.TenantID,
	}
	c.Batches.Insert(b)

	seedDecl := engine.JobDeclaration{
		HandlerType:     TypeBatchSeed,
		JobDefinitionID: seedDef.ID,
		TenantID:        req.TenantID,
	}
	c.Jobs.Insert(seedDecl.Create(engine.StringConfiguration(batchID), nil))

	return b, nil
}

// Delete removes a batch with its job definitions and jobs in one command.
// Execution jobs go through the handler's DeleteJobs, so a handler with
// handler-specific cleanup gets to run it. cascadeToHistory is accepted for
// call-site compatibility: history cleanup is owned by an external
// collaborator, so the flag changes nothing here.
func Delete(c *engine.CommandContext, batchID string, cascadeToHistory bool) error {
	b, err := c.Batches.FindByID(batchID)
	if err != nil {
		return err
	}
	if b == nil {
		return &core.BatchNotFoundError{BatchID: batchID}
	}
	if err := deleteJobs(c, b); err != nil {
		return err
	}
	c.Batches.Delete(b, "")
	return nil
}

// deleteJobs dispatches execution-job cleanup to the registered handler.
func deleteJobs(c *engine.CommandContext, b *core.Batch) error {
	handler, ok := c.Registry().Batch(b.Type)
	if !ok {
		return fmt.Errorf("%w: no batch handler for type %q", core.ErrUnknownHandler, b.Type)
	}
	return handler.DeleteJobs(c, b)
}
