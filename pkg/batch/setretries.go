package batch

import (
	"encoding/json"
	"fmt"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/engine"
)

// TypeSetJobRetries is the built-in batch type that bulk-sets the retry
// count of many jobs.
const TypeSetJobRetries = "set-job-retries"

// SetRetriesConfiguration is the payload of a set-job-retries batch: the
// target job ids plus the retry count to write.
type SetRetriesConfiguration struct {
	Configuration
	Retries int `json:"retries"`
}

func (c *SetRetriesConfiguration) ToCanonicalString() string {
	return marshalConfiguration(c)
}

func (c *SetRetriesConfiguration) chunk(ids []string, mappings DeploymentMappings) Payload {
	return &SetRetriesConfiguration{
		Configuration: Configuration{BatchID: c.BatchID, IDs: ids, DeploymentMappings: mappings},
		Retries:       c.Retries,
	}
}

// SetRetriesHandler executes one chunk of a set-job-retries batch: a
// revision-checked update per target job. A concurrently modified target
// surfaces as an optimistic-lock conflict, fails the chunk job and gets
// retried; a target that no longer exists is skipped.
type SetRetriesHandler struct{}

func NewSetRetriesHandler() *SetRetriesHandler { return &SetRetriesHandler{} }

func (h *SetRetriesHandler) Type() string { return TypeSetJobRetries }

func (h *SetRetriesHandler) NewConfiguration(canonical string) (engine.Configuration, error) {
	var cfg SetRetriesConfiguration
	if err := json.Unmarshal([]byte(canonical), &cfg); err != nil {
		return nil, fmt.Errorf("parse set-job-retries configuration: %w", err)
	}
	return &cfg, nil
}

func (h *SetRetriesHandler) Execute(c *engine.CommandContext, cfg engine.Configuration, job *core.Job) error {
	sc, ok := cfg.(*SetRetriesConfiguration)
	if !ok {
		return fmt.Errorf("unexpected configuration type %T for %s job", cfg, TypeSetJobRetries)
	}
	for _, id := range sc.IDs {
		target, err := c.Jobs.FindByID(id)
		if err != nil {
			return err
		}
		if target == nil {
			continue
		}
		target.SetRetries(sc.Retries)
		c.Jobs.Update(target)
	}
	return nil
}

func (h *SetRetriesHandler) CreateJobs(c *engine.CommandContext, b *core.Batch) (bool, error) {
	cfg, err := h.NewConfiguration(string(b.Configuration))
	if err != nil {
		return false, err
	}
	return createJobs(c, b, cfg.(*SetRetriesConfiguration), h.JobDeclaration())
}

func (h *SetRetriesHandler) DeleteJobs(c *engine.CommandContext, b *core.Batch) error {
	c.Jobs.DeleteByDefinitionID(b.BatchJobDefinitionID)
	return nil
}

func (h *SetRetriesHandler) JobDeclaration() *engine.JobDeclaration {
	return &engine.JobDeclaration{
		HandlerType: TypeSetJobRetries,
		Retries:     core.DefaultRetries,
	}
}
