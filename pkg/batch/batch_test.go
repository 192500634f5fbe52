package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/engine"
	"github.com/perluxo/batchjobs/pkg/persistence"
)

var dbCounter atomic.Int64

func newTestEngine(t *testing.T, pollTime time.Duration, extra ...engine.JobHandler) *engine.CommandExecutor {
	t.Helper()
	path := fmt.Sprintf("/tmp/batchjobs_batch_%d_%d.db", os.Getpid(), dbCounter.Add(1))
	t.Cleanup(func() { _ = os.Remove(path) })

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open sqlite test db")

	registry := engine.NewHandlerRegistry(append([]engine.JobHandler{
		NewSeedHandler(),
		NewMonitorHandler(pollTime),
		NewSetRetriesHandler(),
	}, extra...)...)
	commands := engine.NewCommandExecutor(db, persistence.FlushBatched, registry)
	require.NoError(t, commands.Migrate(context.Background()), "migrate schema")
	return commands
}

// runJob executes one stored job the way the executor does: dispatch by
// handler type, delete the job row on success, all in one command.
func runJob(t *testing.T, commands *engine.CommandExecutor, jobID string) error {
	t.Helper()
	return commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		job, err := c.Jobs.FindByID(jobID)
		if err != nil {
			return err
		}
		require.NotNil(t, job, "job %s must exist", jobID)

		handler, ok := c.Registry().Get(job.HandlerType)
		require.True(t, ok, "no handler for type %s", job.HandlerType)
		cfg, err := handler.NewConfiguration(job.HandlerConfig)
		require.NoError(t, err)

		if err := handler.Execute(c, cfg, job); err != nil {
			return err
		}
		c.Jobs.Delete(job)
		return nil
	})
}

func jobsOfType(t *testing.T, commands *engine.CommandExecutor, handlerType string) []*core.Job {
	t.Helper()
	var jobs []*core.Job
	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		var err error
		jobs, err = c.Jobs.FindByHandlerType(handlerType, 0)
		return err
	}))
	return jobs
}

func createTestBatch(t *testing.T, commands *engine.CommandExecutor, ids []string, retries, perSeed, perJob int) *core.Batch {
	t.Helper()
	var created *core.Batch
	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		var err error
		created, err = Create(c, CreateRequest{
			Type: TypeSetJobRetries,
			Configuration: &SetRetriesConfiguration{
				Configuration: Configuration{IDs: ids},
				Retries:       retries,
			},
			BatchJobsPerSeed:       perSeed,
			InvocationsPerBatchJob: perJob,
		})
		return err
	}))
	return created
}

func findBatch(t *testing.T, commands *engine.CommandExecutor, id string) *core.Batch {
	t.Helper()
	var b *core.Batch
	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		var err error
		b, err = c.Batches.FindByID(id)
		return err
	}))
	return b
}

func TestCreate_StagesBatchDefinitionsAndSeedJob(t *testing.T) {
	commands := newTestEngine(t, time.Minute)
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}

	b := createTestBatch(t, commands, ids, 5, 3, 2)

	stored := findBatch(t, commands, b.ID)
	require.NotNil(t, stored)
	assert.Equal(t, TypeSetJobRetries, stored.Type)
	assert.Equal(t, 4, stored.TotalJobs, "ceil(7/2)")
	assert.Equal(t, 0, stored.JobsCreated)
	assert.Equal(t, 3, stored.BatchJobsPerSeed)
	assert.Equal(t, 2, stored.InvocationsPerBatchJob)

	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		for _, defID := range []string{stored.SeedJobDefinitionID, stored.MonitorJobDefinitionID, stored.BatchJobDefinitionID} {
			def, err := c.JobDefinitions.FindByID(defID)
			if err != nil {
				return err
			}
			require.NotNil(t, def, "definition %s must exist", defID)
			assert.Equal(t, stored.ID, def.JobConfiguration)
		}
		return nil
	}))

	seeds := jobsOfType(t, commands, TypeBatchSeed)
	require.Len(t, seeds, 1)
	assert.Equal(t, stored.ID, seeds[0].HandlerConfig)
	assert.Equal(t, stored.SeedJobDefinitionID, seeds[0].JobDefinitionID)
	assert.Nil(t, seeds[0].DueDate, "the seed job is immediately due")

	// The persisted configuration has the batch id merged in.
	var cfg SetRetriesConfiguration
	require.NoError(t, json.Unmarshal(stored.Configuration, &cfg))
	assert.Equal(t, stored.ID, cfg.BatchID)
	assert.Equal(t, ids, cfg.IDs)
	assert.Equal(t, 5, cfg.Retries)
}

func TestCreate_Validation(t *testing.T) {
	commands := newTestEngine(t, time.Minute)

	cases := []struct {
		name string
		req  CreateRequest
		want string
	}{
		{
			name: "missing configuration",
			req:  CreateRequest{Type: TypeSetJobRetries, BatchJobsPerSeed: 1, InvocationsPerBatchJob: 1},
			want: "configuration is required",
		},
		{
			name: "unknown batch type",
			req: CreateRequest{
				Type:          "no-such-batch",
				Configuration: &SetRetriesConfiguration{Configuration: Configuration{IDs: []string{"a"}}},

				BatchJobsPerSeed: 1, InvocationsPerBatchJob: 1,
			},
			want: "no batch handler",
		},
		{
			name: "no target ids",
			req: CreateRequest{
				Type:             TypeSetJobRetries,
				Configuration:    &SetRetriesConfiguration{},
				BatchJobsPerSeed: 1, InvocationsPerBatchJob: 1,
			},
			want: "no target ids",
		},
		{
			name: "mapping count mismatch",
			req: CreateRequest{
				Type: TypeSetJobRetries,
				Configuration: &SetRetriesConfiguration{Configuration: Configuration{
					IDs:                []string{"a", "b"},
					DeploymentMappings: DeploymentMappings{{DeploymentID: "dep-1", Count: 3}},
				}},
				BatchJobsPerSeed: 1, InvocationsPerBatchJob: 1,
			},
			want: "deployment mappings cover",
		},
		{
			name: "zero invocations per job",
			req: CreateRequest{
				Type:             TypeSetJobRetries,
				Configuration:    &SetRetriesConfiguration{Configuration: Configuration{IDs: []string{"a"}}},
				BatchJobsPerSeed: 1,
			},
			want: "invocations per batch job",
		},
		{
			name: "zero jobs per seed",
			req: CreateRequest{
				Type:                   TypeSetJobRetries,
				Configuration:          &SetRetriesConfiguration{Configuration: Configuration{IDs: []string{"a"}}},
				InvocationsPerBatchJob: 1,
			},
			want: "jobs per seed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := commands.Execute(context.Background(), func(c *engine.CommandContext) error {
				_, err := Create(c, tc.req)
				return err
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSeed_ChunkedFanOutConvergence(t *testing.T) {
	commands := newTestEngine(t, time.Minute)
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}

	// ceil(7/2) = 4 execution jobs, at most 2 per seed invocation.
	b := createTestBatch(t, commands, ids, 5, 2, 2)

	// First invocation: one chunk, seed re-inserted.
	seeds := jobsOfType(t, commands, TypeBatchSeed)
	require.Len(t, seeds, 1)
	require.NoError(t, runJob(t, commands, seeds[0].ID))

	assert.Len(t, jobsOfType(t, commands, TypeSetJobRetries), 2)
	assert.Empty(t, jobsOfType(t, commands, TypeBatchMonitor))
	stored := findBatch(t, commands, b.ID)
	assert.Equal(t, 2, stored.JobsCreated)

	seeds = jobsOfType(t, commands, TypeBatchSeed)
	require.Len(t, seeds, 1, "seed re-inserts itself while work remains")

	// Second invocation: final chunk, monitor instead of another seed.
	require.NoError(t, runJob(t, commands, seeds[0].ID))

	execution := jobsOfType(t, commands, TypeSetJobRetries)
	assert.Len(t, execution, 4)
	assert.Empty(t, jobsOfType(t, commands, TypeBatchSeed))

	monitors := jobsOfType(t, commands, TypeBatchMonitor)
	require.Len(t, monitors, 1)
	assert.Nil(t, monitors[0].DueDate, "monitor runs immediately after seeding")

	stored = findBatch(t, commands, b.ID)
	assert.Equal(t, 4, stored.JobsCreated)
	assert.True(t, stored.SeedComplete())

	// The chunks partition the original id set exactly.
	var seen []string
	for _, job := range execution {
		var chunk SetRetriesConfiguration
		require.NoError(t, json.Unmarshal([]byte(job.HandlerConfig), &chunk))
		assert.LessOrEqual(t, len(chunk.IDs), 2)
		assert.Equal(t, b.ID, chunk.BatchID)
		assert.Equal(t, 5, chunk.Retries)
		seen = append(seen, chunk.IDs...)
	}
	assert.ElementsMatch(t, ids, seen)

	var remaining SetRetriesConfiguration
	require.NoError(t, json.Unmarshal(stored.Configuration, &remaining))
	assert.Empty(t, remaining.IDs, "all ids consumed")
}

func TestSeed_DeploymentMappingsShrinkWithConsumption(t *testing.T) {
	commands := newTestEngine(t, time.Minute)
	ids := []string{"a", "b", "c", "d", "e"}

	var b *core.Batch
	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		var err error
		b, err = Create(c, CreateRequest{
			Type: TypeSetJobRetries,
			Configuration: &SetRetriesConfiguration{
				Configuration: Configuration{
					IDs: ids,
					DeploymentMappings: DeploymentMappings{
						{DeploymentID: "dep-1", Count: 2},
						{DeploymentID: "dep-2", Count: 3},
					},
				},
			},
			BatchJobsPerSeed:       1,
			InvocationsPerBatchJob: 3,
		})
		return err
	}))

	seeds := jobsOfType(t, commands, TypeBatchSeed)
	require.Len(t, seeds, 1)
	require.NoError(t, runJob(t, commands, seeds[0].ID))

	// One chunk of 3 consumed: chunk covers dep-1 fully and dep-2 partially.
	execution := jobsOfType(t, commands, TypeSetJobRetries)
	require.Len(t, execution, 1)
	var chunk SetRetriesConfiguration
	require.NoError(t, json.Unmarshal([]byte(execution[0].HandlerConfig), &chunk))
	assert.Equal(t, DeploymentMappings{
		{DeploymentID: "dep-1", Count: 2},
		{DeploymentID: "dep-2", Count: 1},
	}, chunk.DeploymentMappings)

	var rest SetRetriesConfiguration
	require.NoError(t, json.Unmarshal(findBatch(t, commands, b.ID).Configuration, &rest))
	assert.Equal(t, []string{"d", "e"}, rest.IDs)
	assert.Equal(t, len(rest.IDs), rest.DeploymentMappings.TotalCount())
}

func TestSeed_MissingBatchFailsLoudly(t *testing.T) {
	commands := newTestEngine(t, time.Minute)

	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		c.Jobs.Insert(&core.Job{
			ID:            "orphan-seed",
			HandlerType:   TypeBatchSeed,
			HandlerConfig: "gone-batch",
			Retries:       3,
		})
		return nil
	}))

	err := runJob(t, commands, "orphan-seed")
	var notFound *core.BatchNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "gone-batch", notFound.BatchID)
	assert.Contains(t, err.Error(), "cannot be found")
}

func TestMonitor_ReschedulesUntilCompleteThenDeletesBatch(t *testing.T) {
	commands := newTestEngine(t, time.Minute)

	b := createTestBatch(t, commands, []string{"x", "y"}, 5, 10, 1)
	seeds := jobsOfType(t, commands, TypeBatchSeed)
	require.Len(t, seeds, 1)
	require.NoError(t, runJob(t, commands, seeds[0].ID))

	execution := jobsOfType(t, commands, TypeSetJobRetries)
	require.Len(t, execution, 2)

	// Outstanding execution jobs: the monitor reschedules itself with a due
	// date one poll interval out.
	monitors := jobsOfType(t, commands, TypeBatchMonitor)
	require.Len(t, monitors, 1)
	before := time.Now()
	require.NoError(t, runJob(t, commands, monitors[0].ID))

	monitors = jobsOfType(t, commands, TypeBatchMonitor)
	require.Len(t, monitors, 1)
	require.NotNil(t, monitors[0].DueDate)
	assert.WithinDuration(t, before.Add(time.Minute), *monitors[0].DueDate, 5*time.Second)
	require.NotNil(t, findBatch(t, commands, b.ID))

	// Drain the execution jobs, then the monitor removes everything.
	for _, job := range execution {
		require.NoError(t, runJob(t, commands, job.ID))
	}
	require.NoError(t, runJob(t, commands, monitors[0].ID))

	assert.Nil(t, findBatch(t, commands, b.ID))
	assert.Empty(t, jobsOfType(t, commands, TypeBatchMonitor))
	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		for _, defID := range []string{b.SeedJobDefinitionID, b.MonitorJobDefinitionID, b.BatchJobDefinitionID} {
			def, err := c.JobDefinitions.FindByID(defID)
			if err != nil {
				return err
			}
			assert.Nil(t, def, "definition %s must be deleted", defID)
		}
		return nil
	}))
}

func TestMonitor_IdempotentAgainstDeletedBatch(t *testing.T) {
	commands := newTestEngine(t, time.Minute)

	// A monitor job whose batch is already gone completes without error.
	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		c.Jobs.Insert(&core.Job{
			ID:            "stale-monitor",
			HandlerType:   TypeBatchMonitor,
			HandlerConfig: "gone-batch",
			Retries:       3,
		})
		return nil
	}))

	require.NoError(t, runJob(t, commands, "stale-monitor"))
	assert.Empty(t, jobsOfType(t, commands, TypeBatchMonitor))
}

func TestSetRetries_ExecutionUpdatesTargetJobs(t *testing.T) {
	commands := newTestEngine(t, time.Minute)

	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		for _, id := range []string{"target-1", "target-2"} {
			c.Jobs.Insert(&core.Job{ID: id, HandlerType: "application-work", Retries: 0})
		}
		return nil
	}))

	createTestBatch(t, commands, []string{"target-1", "target-2", "target-gone"}, 5, 10, 3)
	seeds := jobsOfType(t, commands, TypeBatchSeed)
	require.Len(t, seeds, 1)
	require.NoError(t, runJob(t, commands, seeds[0].ID))

	execution := jobsOfType(t, commands, TypeSetJobRetries)
	require.Len(t, execution, 1)
	require.NoError(t, runJob(t, commands, execution[0].ID), "missing targets are skipped")

	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		for _, id := range []string{"target-1", "target-2"} {
			target, err := c.Jobs.FindByID(id)
			if err != nil {
				return err
			}
			require.NotNil(t, target)
			assert.Equal(t, 5, target.Retries)
			assert.Equal(t, 2, target.Revision, "versioned update bumps the revision")
		}
		return nil
	}))
}

func TestDelete_RemovesBatchDefinitionsAndJobs(t *testing.T) {
	commands := newTestEngine(t, time.Minute)

	b := createTestBatch(t, commands, []string{"a", "b", "c"}, 5, 10, 1)
	seeds := jobsOfType(t, commands, TypeBatchSeed)
	require.Len(t, seeds, 1)
	require.NoError(t, runJob(t, commands, seeds[0].ID))
	require.Len(t, jobsOfType(t, commands, TypeSetJobRetries), 3)

	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		return Delete(c, b.ID, false)
	}))

	assert.Nil(t, findBatch(t, commands, b.ID))
	assert.Empty(t, jobsOfType(t, commands, TypeSetJobRetries))
	assert.Empty(t, jobsOfType(t, commands, TypeBatchMonitor))
}

// archivingHandler is a batch handler with cleanup of its own beyond the
// execution job rows.
type archivingHandler struct {
	SetRetriesHandler
	cleanups atomic.Int32
}

func (h *archivingHandler) Type() string { return "archive-retries" }

func (h *archivingHandler) CreateJobs(c *engine.CommandContext, b *core.Batch) (bool, error) {
	cfg, err := h.NewConfiguration(string(b.Configuration))
	if err != nil {
		return false, err
	}
	return createJobs(c, b, cfg.(*SetRetriesConfiguration), h.JobDeclaration())
}

func (h *archivingHandler) DeleteJobs(c *engine.CommandContext, b *core.Batch) error {
	h.cleanups.Add(1)
	return h.SetRetriesHandler.DeleteJobs(c, b)
}

func (h *archivingHandler) JobDeclaration() *engine.JobDeclaration {
	return &engine.JobDeclaration{HandlerType: h.Type(), Retries: core.DefaultRetries}
}

func TestDelete_DispatchesHandlerDeleteJobs(t *testing.T) {
	h := &archivingHandler{}
	commands := newTestEngine(t, time.Minute, h)

	var b *core.Batch
	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		var err error
		b, err = Create(c, CreateRequest{
			Type: h.Type(),
			Configuration: &SetRetriesConfiguration{
				Configuration: Configuration{IDs: []string{"a", "b"}},
				Retries:       5,
			},
			BatchJobsPerSeed:       10,
			InvocationsPerBatchJob: 1,
		})
		return err
	}))

	seeds := jobsOfType(t, commands, TypeBatchSeed)
	require.Len(t, seeds, 1)
	require.NoError(t, runJob(t, commands, seeds[0].ID))
	require.Len(t, jobsOfType(t, commands, h.Type()), 2)

	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		return Delete(c, b.ID, false)
	}))

	assert.Equal(t, int32(1), h.cleanups.Load(), "handler cleanup must run on batch deletion")
	assert.Nil(t, findBatch(t, commands, b.ID))
	assert.Empty(t, jobsOfType(t, commands, h.Type()))
	assert.Empty(t, jobsOfType(t, commands, TypeBatchMonitor))
}

func TestMonitor_CompletionDispatchesHandlerDeleteJobs(t *testing.T) {
	h := &archivingHandler{}
	commands := newTestEngine(t, time.Minute, h)

	require.NoError(t, commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		_, err := Create(c, CreateRequest{
			Type: h.Type(),
			Configuration: &SetRetriesConfiguration{
				Configuration: Configuration{IDs: []string{"a"}},
				Retries:       5,
			},
			BatchJobsPerSeed:       10,
			InvocationsPerBatchJob: 1,
		})
		return err
	}))

	seeds := jobsOfType(t, commands, TypeBatchSeed)
	require.Len(t, seeds, 1)
	require.NoError(t, runJob(t, commands, seeds[0].ID))

	execution := jobsOfType(t, commands, h.Type())
	require.Len(t, execution, 1)
	require.NoError(t, runJob(t, commands, execution[0].ID))

	monitors := jobsOfType(t, commands, TypeBatchMonitor)
	require.Len(t, monitors, 1)
	require.NoError(t, runJob(t, commands, monitors[0].ID))

	assert.Equal(t, int32(1), h.cleanups.Load(), "handler cleanup must run when the monitor completes the batch")
}

func TestDelete_MissingBatch(t *testing.T) {
	commands := newTestEngine(t, time.Minute)

	err := commands.Execute(context.Background(), func(c *engine.CommandContext) error {
		return Delete(c, "nope", true)
	})
	var notFound *core.BatchNotFoundError
	require.ErrorAs(t, err, &notFound)
}
