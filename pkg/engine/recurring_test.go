package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/schedule"
)

func TestRecurringHandler_SchedulesSuccessorOnSuccess(t *testing.T) {
	ctx := context.Background()

	var ran []string
	handler := NewRecurringHandler("cleanup", schedule.Every(time.Hour),
		func(c *CommandContext, cfg Configuration, job *core.Job) error {
			ran = append(ran, cfg.ToCanonicalString())
			return nil
		})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler.now = func() time.Time { return base }

	commands := newTestCommands(t, handler)
	require.NoError(t, commands.Execute(ctx, func(c *CommandContext) error {
		c.Jobs.Insert(&core.Job{
			ID: "cleanup-1", HandlerType: "cleanup", HandlerConfig: "tenant-a",
			Retries: 3, JobDefinitionID: "def-cleanup", Priority: 4,
		})
		return nil
	}))

	require.NoError(t, commands.Execute(ctx, func(c *CommandContext) error {
		job, err := c.Jobs.FindByID("cleanup-1")
		if err != nil {
			return err
		}
		cfg, err := handler.NewConfiguration(job.HandlerConfig)
		if err != nil {
			return err
		}
		if err := handler.Execute(c, cfg, job); err != nil {
			return err
		}
		c.Jobs.Delete(job)
		return nil
	}))

	assert.Equal(t, []string{"tenant-a"}, ran)

	require.NoError(t, commands.Execute(ctx, func(c *CommandContext) error {
		successors, err := c.Jobs.FindByHandlerType("cleanup", 0)
		if err != nil {
			return err
		}
		require.Len(t, successors, 1, "exactly one successor job")
		next := successors[0]
		assert.NotEqual(t, "cleanup-1", next.ID)
		assert.Equal(t, "tenant-a", next.HandlerConfig)
		assert.Equal(t, "def-cleanup", next.JobDefinitionID)
		assert.Equal(t, int64(4), next.Priority)
		require.NotNil(t, next.DueDate)
		assert.Equal(t, base.Add(time.Hour), next.DueDate.UTC())
		return nil
	}))
}

func TestRecurringHandler_NoSuccessorOnFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	handler := NewRecurringHandler("cleanup", schedule.Every(time.Hour),
		func(c *CommandContext, cfg Configuration, job *core.Job) error {
			return boom
		})

	commands := newTestCommands(t, handler)
	require.NoError(t, commands.Execute(ctx, func(c *CommandContext) error {
		c.Jobs.Insert(&core.Job{ID: "cleanup-1", HandlerType: "cleanup", Retries: 3})
		return nil
	}))

	err := commands.Execute(ctx, func(c *CommandContext) error {
		job, err := c.Jobs.FindByID("cleanup-1")
		if err != nil {
			return err
		}
		cfg, _ := handler.NewConfiguration(job.HandlerConfig)
		return handler.Execute(c, cfg, job)
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, commands.Execute(ctx, func(c *CommandContext) error {
		jobs, err := c.Jobs.FindByHandlerType("cleanup", 0)
		if err != nil {
			return err
		}
		assert.Len(t, jobs, 1, "only the original job remains")
		return nil
	}))
}
