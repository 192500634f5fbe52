package batch

import (
	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/engine"
)

// Payload is the full configuration of one batch. The built-in handler
// configurations implement it; the sealed methods keep chunking and
// re-serialization consistent across handlers.
type Payload interface {
	engine.Configuration

	// base exposes the shared id list and deployment partition.
	base() *Configuration

	// chunk derives the configuration for one execution job covering the
	// given ids, carrying over the handler-specific parameters.
	chunk(ids []string, mappings DeploymentMappings) Payload
}

// createJobs is the shared chunked fan-out: it creates up to
// batch.BatchJobsPerSeed execution jobs, each consuming up to
// batch.InvocationsPerBatchJob ids from the front of the unconsumed
// configuration, then persists the shrunken configuration and the advanced
// high-water mark on the batch row. It reports true once every execution job
// exists.
//
// The caller's command commits chunk N before the re-inserted seed job can
// produce chunk N+1, so at no point are all TotalJobs rows staged in one
// transaction.
func createJobs(c *engine.CommandContext, b *core.Batch, cfg Payload, template *engine.JobDeclaration) (bool, error) {
	base := cfg.base()
	remaining := base.IDs
	mappings := base.DeploymentMappings

	toCreate := b.BatchJobsPerSeed
	if left := b.TotalJobs - b.JobsCreated; left < toCreate {
		toCreate = left
	}

	created := 0
	for created < toCreate && len(remaining) > 0 {
		n := b.InvocationsPerBatchJob
		if n > len(remaining) {
			n = len(remaining)
		}
		head, tail := mappings.Split(n)

		decl := *template
		decl.JobDefinitionID = b.BatchJobDefinitionID
		decl.TenantID = b.TenantID
		c.Jobs.Insert(decl.Create(cfg.chunk(remaining[:n], head), nil))

		remaining = remaining[n:]
		mappings = tail
		created++
	}

	base.IDs = remaining
	base.DeploymentMappings = mappings
	b.JobsCreated += created
	b.Configuration = []byte(cfg.ToCanonicalString())
	c.Batches.Update(b)

	return b.SeedComplete(), nil
}
