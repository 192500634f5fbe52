// Package batchjobs provides a persistent job scheduler and batch
// orchestrator on top of a relational store.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("jobs.db"), &gorm.Config{})
//	cfg := batchjobs.DefaultConfig()
//	commands, _ := batchjobs.New(db, cfg, myHandler)
//	commands.Migrate(ctx)
//
//	// Schedule a job
//	commands.Execute(ctx, func(c *batchjobs.CommandContext) error {
//	    decl := batchjobs.JobDeclaration{HandlerType: "send-email"}
//	    c.Jobs.Insert(decl.Create(batchjobs.StringConfiguration("user@example.com"), nil))
//	    return nil
//	})
//
//	// Run the executor
//	exec := batchjobs.NewExecutor(commands, cfg, nil)
//	exec.Start(ctx)
package batchjobs

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/perluxo/batchjobs/pkg/batch"
	"github.com/perluxo/batchjobs/pkg/config"
	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/engine"
	"github.com/perluxo/batchjobs/pkg/executor"
	"github.com/perluxo/batchjobs/pkg/metrics"
	"github.com/perluxo/batchjobs/pkg/persistence"
	"github.com/perluxo/batchjobs/pkg/schedule"
)

// Type aliases re-exporting the package API.
type (
	// Job is a persisted unit of work.
	Job = core.Job

	// JobDefinition groups jobs of one logical source.
	JobDefinition = core.JobDefinition

	// Batch is the orchestration record of a bulk operation.
	Batch = core.Batch

	// SuspensionState marks jobs and definitions active or suspended.
	SuspensionState = core.SuspensionState

	// BatchNotFoundError reports a seed or monitor job without its batch.
	BatchNotFoundError = core.BatchNotFoundError

	// JobHandler executes jobs of one type.
	JobHandler = engine.JobHandler

	// BatchJobHandler is the capability superset for batch-driving handlers.
	BatchJobHandler = engine.BatchJobHandler

	// Configuration is a deserialized job payload.
	Configuration = engine.Configuration

	// StringConfiguration is a plain opaque payload string.
	StringConfiguration = engine.StringConfiguration

	// HandlerRegistry maps job type tags to handlers.
	HandlerRegistry = engine.HandlerRegistry

	// JobDeclaration is a factory for jobs of one handler type.
	JobDeclaration = engine.JobDeclaration

	// CommandExecutor runs transactional commands against the store.
	CommandExecutor = engine.CommandExecutor

	// CommandContext is the per-command view of the store.
	CommandContext = engine.CommandContext

	// RecurringHandler reschedules its own jobs per a schedule.
	RecurringHandler = engine.RecurringHandler

	// Executor acquires and runs due jobs.
	Executor = executor.Executor

	// Config carries the engine tunables.
	Config = config.Config

	// Metrics is the engine's instrumentation set.
	Metrics = metrics.Metrics

	// Schedule computes when a recurring job is due next.
	Schedule = schedule.Schedule

	// BatchConfiguration is the shared payload of a batch.
	BatchConfiguration = batch.Configuration

	// BatchPayload is the full, handler-specific payload of a batch.
	BatchPayload = batch.Payload

	// DeploymentMapping partitions batch ids by deployment.
	DeploymentMapping = batch.DeploymentMapping

	// DeploymentMappings is the ordered deployment partition.
	DeploymentMappings = batch.DeploymentMappings

	// SetRetriesConfiguration is the payload of a set-job-retries batch.
	SetRetriesConfiguration = batch.SetRetriesConfiguration

	// CreateBatchRequest describes a new batch.
	CreateBatchRequest = batch.CreateRequest

	// OptimisticLockingError reports logical writes lost to concurrent
	// modification.
	OptimisticLockingError = persistence.OptimisticLockingError

	// PersistenceError reports an unexpected driver-level failure.
	PersistenceError = persistence.PersistenceError
)

// Constant re-exports.
const (
	DefaultRetries = core.DefaultRetries

	SuspensionStateActive    = core.SuspensionStateActive
	SuspensionStateSuspended = core.SuspensionStateSuspended

	TypeBatchSeed     = batch.TypeBatchSeed
	TypeBatchMonitor  = batch.TypeBatchMonitor
	TypeSetJobRetries = batch.TypeSetJobRetries
)

// Sentinel error re-exports.
var (
	ErrJobNotFound    = core.ErrJobNotFound
	ErrJobNotLocked   = core.ErrJobNotLocked
	ErrUnknownHandler = core.ErrUnknownHandler
)

// Function re-exports.
var (
	// LoadConfig parses the configuration from the environment.
	LoadConfig = config.Load

	// DefaultConfig returns the configuration with every default applied.
	DefaultConfig = config.Default

	// NewMetrics registers the engine metrics on the given registerer.
	NewMetrics = metrics.New

	// NewExecutor creates a job executor over a command executor.
	NewExecutor = executor.New

	// NewRecurringHandler creates a self-rescheduling handler.
	NewRecurringHandler = engine.NewRecurringHandler

	// Every, Daily, Weekly and Cron build schedules for recurring jobs.
	Every  = schedule.Every
	Daily  = schedule.Daily
	Weekly = schedule.Weekly
	Cron   = schedule.Cron
)

// OpenDatabase opens the store behind a config DatabaseURL: postgres:// and
// postgresql:// URLs use the postgres driver, anything else is treated as a
// sqlite file path.
func OpenDatabase(url string) (*gorm.DB, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return gorm.Open(postgres.Open(url), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(url), &gorm.Config{})
}

// New wires a command executor over the given database: the built-in batch
// orchestration handlers plus the application handlers, flushing in the
// configured mode.
func New(db *gorm.DB, cfg Config, handlers ...JobHandler) (*CommandExecutor, error) {
	mode, err := flushMode(cfg.FlushMode)
	if err != nil {
		return nil, err
	}
	all := append([]JobHandler{
		batch.NewSeedHandler(),
		batch.NewMonitorHandler(cfg.BatchPollTime),
		batch.NewSetRetriesHandler(),
	}, handlers...)
	return engine.NewCommandExecutor(db, mode, engine.NewHandlerRegistry(all...)), nil
}

func flushMode(mode string) (persistence.FlushMode, error) {
	switch persistence.FlushMode(mode) {
	case persistence.FlushBatched, "":
		return persistence.FlushBatched, nil
	case persistence.FlushSequential:
		return persistence.FlushSequential, nil
	default:
		return "", fmt.Errorf("batchjobs: unknown flush mode %q", mode)
	}
}

// CreateBatch creates a batch in one command and returns it.
func CreateBatch(ctx context.Context, commands *CommandExecutor, cfg Config, req CreateBatchRequest) (*Batch, error) {
	if req.BatchJobsPerSeed == 0 {
		req.BatchJobsPerSeed = cfg.BatchJobsPerSeed
	}
	if req.InvocationsPerBatchJob == 0 {
		req.InvocationsPerBatchJob = cfg.InvocationsPerBatchJob
	}
	var created *Batch
	err := commands.Execute(ctx, func(c *CommandContext) error {
		var err error
		created, err = batch.Create(c, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteBatch removes a batch with its definitions and jobs in one command.
// cascadeToHistory is accepted for call-site compatibility; history cleanup
// is owned by an external collaborator.
func DeleteBatch(ctx context.Context, commands *CommandExecutor, batchID string, cascadeToHistory bool) error {
	return commands.Execute(ctx, func(c *CommandContext) error {
		return batch.Delete(c, batchID, cascadeToHistory)
	})
}
