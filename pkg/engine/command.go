package engine

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/persistence"
)

// CommandExecutor runs commands against the durable store. Every command
// executes inside one transaction that ends with exactly one session flush;
// a command error rolls the transaction back without flushing.
type CommandExecutor struct {
	db       *gorm.DB
	mode     persistence.FlushMode
	registry *HandlerRegistry
	logger   *slog.Logger
}

// NewCommandExecutor creates a command executor flushing in the given mode.
// The registry is immutable after construction; handlers are looked up by
// type tag at execution time.
func NewCommandExecutor(db *gorm.DB, mode persistence.FlushMode, registry *HandlerRegistry) *CommandExecutor {
	if registry == nil {
		registry = NewHandlerRegistry()
	}
	return &CommandExecutor{db: db, mode: mode, registry: registry, logger: slog.Default()}
}

// Migrate creates the job, job definition and batch tables.
func (ce *CommandExecutor) Migrate(ctx context.Context) error {
	return ce.db.WithContext(ctx).AutoMigrate(&core.Job{}, &core.JobDefinition{}, &core.Batch{})
}

// Registry returns the handler registry the executor was built with.
func (ce *CommandExecutor) Registry() *HandlerRegistry {
	return ce.registry
}

// Execute runs one command. The command stages writes through the context's
// session and managers; the flush happens after the command returns and
// before the transaction commits.
func (ce *CommandExecutor) Execute(ctx context.Context, command func(c *CommandContext) error) error {
	return ce.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session := persistence.NewSession(persistence.NewFlusher(persistence.NewGormExecutor(tx), ce.mode))
		c := &CommandContext{
			ctx:      ctx,
			tx:       tx,
			session:  session,
			registry: ce.registry,
		}
		c.Jobs = &JobManager{tx: tx, session: session}
		c.JobDefinitions = &JobDefinitionManager{tx: tx, session: session}
		c.Batches = &BatchManager{tx: tx, session: session, jobs: c.Jobs}

		if err := command(c); err != nil {
			return err
		}
		return session.Flush(ctx)
	})
}

// CommandContext is the per-command view of the store.
type CommandContext struct {
	ctx      context.Context
	tx       *gorm.DB
	session  *persistence.Session
	registry *HandlerRegistry

	Jobs           *JobManager
	JobDefinitions *JobDefinitionManager
	Batches        *BatchManager
}

// Context returns the context the command was started with.
func (c *CommandContext) Context() context.Context { return c.ctx }

// Session exposes the staged-operation session, e.g. to register an
// optimistic locking listener for the flush.
func (c *CommandContext) Session() *persistence.Session { return c.session }

// Registry returns the handler registry.
func (c *CommandContext) Registry() *HandlerRegistry { return c.registry }
