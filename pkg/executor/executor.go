// Package executor provides the job acquisition loop and execution worker
// pool.
//
// Any number of executors, in any number of processes, may run against the
// same durable store: all coordination happens through the jobs table's lock
// and revision columns, claimed with conditional writes. A lost lock race is
// a skip, not an error; a crashed executor's jobs become acquirable again
// once their locks expire.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/perluxo/batchjobs/pkg/config"
	"github.com/perluxo/batchjobs/pkg/core"
	"github.com/perluxo/batchjobs/pkg/engine"
	"github.com/perluxo/batchjobs/pkg/metrics"
	"github.com/perluxo/batchjobs/pkg/persistence"
)

// Executor acquires due jobs in bounded pages and hands them to a bounded
// worker pool.
type Executor struct {
	commands  *engine.CommandExecutor
	cfg       config.Config
	metrics   *metrics.Metrics
	lockOwner string
	logger    *slog.Logger
	pool      *pool
	backoff   *acquisitionBackoff
	rejects   rejectionLog
}

// New creates an executor with a fresh lock-owner identity. A nil metrics
// argument disables scraping without disabling instrumentation.
func New(commands *engine.CommandExecutor, cfg config.Config, m *metrics.Metrics) *Executor {
	if m == nil {
		m = metrics.Nop()
	}
	return &Executor{
		commands:  commands,
		cfg:       cfg,
		metrics:   m,
		lockOwner: uuid.New().String(),
		logger:    slog.Default(),
		pool:      newPool(cfg.WorkerPoolSize, cfg.QueueSize),
		backoff:   newAcquisitionBackoff(cfg.IdleWaitMin, cfg.IdleWaitMax),
		rejects:   rejectionLog{now: time.Now},
	}
}

// LockOwner returns the identity this executor writes into job locks.
func (e *Executor) LockOwner() string { return e.lockOwner }

// Start runs acquisition cycles until the context is cancelled, then stops
// scheduling new cycles and waits for in-flight executions to finish their
// transactions.
func (e *Executor) Start(ctx context.Context) error {
	e.pool.start()
	defer e.pool.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		acquired, err := e.acquireJobs(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			e.logger.Error("job acquisition failed", "error", err)
		}
		e.metrics.AcquisitionCycles.Inc()

		for _, job := range acquired {
			e.submit(ctx, job)
		}

		wait := e.backoff.next(len(acquired), e.cfg.MaxJobsPerAcquisition)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

// acquireJobs runs one acquisition cycle: one transaction that selects a
// page of candidates and conditionally locks each of them.
func (e *Executor) acquireJobs(ctx context.Context) ([]*core.Job, error) {
	var staged []*persistence.Operation
	var candidates []*core.Job

	err := e.commands.Execute(ctx, func(c *engine.CommandContext) error {
		now := time.Now()
		found, err := c.Jobs.FindAcquirable(now, e.cfg.MaxJobsPerAcquisition)
		if err != nil {
			return err
		}
		candidates = found
		staged = e.stageLocks(c, now, candidates)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.collectAcquired(candidates, staged), nil
}

// lockJobs conditionally locks an externally selected candidate page. Split
// out of acquireJobs so contention between acquirers that selected the same
// page can be exercised deterministically.
func (e *Executor) lockJobs(ctx context.Context, candidates []*core.Job) ([]*core.Job, error) {
	var staged []*persistence.Operation
	err := e.commands.Execute(ctx, func(c *engine.CommandContext) error {
		staged = e.stageLocks(c, time.Now(), candidates)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.collectAcquired(candidates, staged), nil
}

func (e *Executor) stageLocks(c *engine.CommandContext, now time.Time, candidates []*core.Job) []*persistence.Operation {
	if len(candidates) == 0 {
		return nil
	}
	expiration := now.Add(e.cfg.LockDuration)
	staged := make([]*persistence.Operation, 0, len(candidates))
	for _, job := range candidates {
		job.Lock(e.lockOwner, expiration)
		staged = append(staged, c.Jobs.Update(job))
	}
	// Every update staged by this command is a lock attempt; losing the race
	// means another acquirer won and the job is skipped.
	c.Session().OnOptimisticLockingFailure(func(op *persistence.Operation) persistence.OptimisticLockingResult {
		e.metrics.AcquisitionRaceLoss.Inc()
		return persistence.LockingIgnore
	})
	return staged
}

func (e *Executor) collectAcquired(candidates []*core.Job, staged []*persistence.Operation) []*core.Job {
	var acquired []*core.Job
	for i, op := range staged {
		if op.State == persistence.StateApplied {
			acquired = append(acquired, candidates[i])
		}
	}
	e.metrics.JobsAcquired.Add(float64(len(acquired)))
	return acquired
}

// submit hands a locked job to the worker pool. A saturated or broken pool
// never drops the job; it is executed synchronously on the acquisition
// goroutine instead, trading acquisition throughput for zero job loss.
func (e *Executor) submit(ctx context.Context, job *core.Job) {
	// Execution must not be torn down mid-transaction on shutdown; the
	// command runs to its natural end and abandoned locks simply expire.
	taskCtx := context.WithoutCancel(ctx)
	e.dispatch(func() { e.executeJob(taskCtx, job.ID) }, job.ID)
}

func (e *Executor) dispatch(task func(), jobID string) {
	ok, err := e.pool.submit(task, e.cfg.SubmitTimeout)
	if err != nil {
		e.metrics.RejectedSubmissions.Inc()
		e.rejects.log(e.logger, err)
		task()
		return
	}
	if !ok {
		e.metrics.RejectedSubmissions.Inc()
		e.logger.Debug("worker pool saturated, executing synchronously", "job_id", jobID)
		task()
	}
}

// executeJob runs one locked job in a fresh command. The job must still be
// locked by this executor; if not, e.g. because the lock expired and was
// reclaimed, the task aborts without side effects.
func (e *Executor) executeJob(ctx context.Context, jobID string) {
	e.metrics.JobsInFlight.Inc()
	defer e.metrics.JobsInFlight.Dec()

	var handlerType string
	err := e.commands.Execute(ctx, func(c *engine.CommandContext) error {
		job, err := c.Jobs.FindByID(jobID)
		if err != nil {
			return err
		}
		if job == nil || job.LockOwner != e.lockOwner {
			return core.ErrJobNotLocked
		}
		handlerType = job.HandlerType

		handler, ok := c.Registry().Get(job.HandlerType)
		if !ok {
			return fmt.Errorf("%w: %q", core.ErrUnknownHandler, job.HandlerType)
		}
		cfg, err := handler.NewConfiguration(job.HandlerConfig)
		if err != nil {
			return fmt.Errorf("invalid configuration for job %s: %w", job.ID, err)
		}
		if err := safeExecute(handler, c, cfg, job); err != nil {
			return err
		}
		c.Jobs.Delete(job)
		return nil
	})

	switch {
	case err == nil:
		e.metrics.JobsExecuted.Inc()
	case errors.Is(err, core.ErrJobNotLocked):
		e.logger.Debug("job no longer locked by this executor, skipping", "job_id", jobID)
	default:
		e.metrics.JobsFailed.Inc()
		e.logger.Warn("job execution failed", "job_id", jobID, "type", handlerType, "error", err)
		e.recordFailure(ctx, jobID, err)
	}
}

func safeExecute(handler engine.JobHandler, c *engine.CommandContext, cfg engine.Configuration, job *core.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Execute(c, cfg, job)
}

// recordFailure decrements retries in a fresh transaction, since the failed
// execution rolled its own back. With retries left, the lock is cleared and
// the due date pushed out by the retry backoff; at zero the job remains as a
// terminal failure record for the incident machinery upstream.
func (e *Executor) recordFailure(ctx context.Context, jobID string, cause error) {
	err := e.commands.Execute(ctx, func(c *engine.CommandContext) error {
		job, err := c.Jobs.FindByID(jobID)
		if err != nil || job == nil {
			return err
		}
		if job.LockOwner != e.lockOwner {
			return nil
		}
		job.SetRetries(job.Retries - 1)
		job.ExceptionMessage = truncate(cause.Error(), 2000)
		job.Unlock()
		if job.Retries > 0 {
			due := time.Now().Add(e.retryBackoff(job.Retries))
			job.DueDate = &due
		}
		c.Jobs.Update(job)
		return nil
	})
	if err != nil {
		e.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
	}
}

// retryBackoff doubles per consumed retry, measured against the configured
// default: the first failure waits the base, the next twice that, capped at
// the maximum.
func (e *Executor) retryBackoff(remaining int) time.Duration {
	consumed := e.cfg.DefaultRetries - remaining
	if consumed < 1 {
		consumed = 1
	}
	delay := e.cfg.RetryBackoffBase << (consumed - 1)
	if delay > e.cfg.RetryBackoffMax {
		delay = e.cfg.RetryBackoffMax
	}
	return delay
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so a multibyte character is never split.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// rejectionLog dampens logging of unexpected submission failures: full
// severity at most once per minute so an outage does not flood the log.
type rejectionLog struct {
	mu       sync.Mutex
	lastWarn time.Time
	now      func() time.Time
}

func (r *rejectionLog) log(logger *slog.Logger, err error) {
	r.mu.Lock()
	now := r.now()
	warn := now.Sub(r.lastWarn) >= time.Minute
	if warn {
		r.lastWarn = now
	}
	r.mu.Unlock()

	if warn {
		logger.Warn("job submission failed unexpectedly, executing synchronously", "error", err)
	} else {
		logger.Debug("job submission failed unexpectedly, executing synchronously", "error", err)
	}
}
