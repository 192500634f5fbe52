// Package config provides the engine tunables, loadable from the
// environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable of the acquisition loop, the worker pool and
// the batch state machine.
type Config struct {
	// Store. postgres:// URLs select the postgres driver, anything else is
	// treated as a sqlite file path.
	DatabaseURL string `env:"DATABASE_URL" envDefault:"jobs.db"`

	// Acquisition.
	MaxJobsPerAcquisition int           `env:"MAX_JOBS_PER_ACQUISITION" envDefault:"3"`
	LockDuration          time.Duration `env:"JOB_LOCK_DURATION" envDefault:"5m"`
	IdleWaitMin           time.Duration `env:"ACQUISITION_IDLE_WAIT_MIN" envDefault:"50ms"`
	IdleWaitMax           time.Duration `env:"ACQUISITION_IDLE_WAIT_MAX" envDefault:"60s"`

	// Worker pool.
	WorkerPoolSize int           `env:"WORKER_POOL_SIZE" envDefault:"4"`
	QueueSize      int           `env:"WORKER_QUEUE_SIZE" envDefault:"8"`
	SubmitTimeout  time.Duration `env:"WORKER_SUBMIT_TIMEOUT" envDefault:"100ms"`

	// Job failure handling.
	DefaultRetries   int           `env:"JOB_DEFAULT_RETRIES" envDefault:"3"`
	RetryBackoffBase time.Duration `env:"JOB_RETRY_BACKOFF_BASE" envDefault:"10s"`
	RetryBackoffMax  time.Duration `env:"JOB_RETRY_BACKOFF_MAX" envDefault:"5m"`

	// Batch orchestration.
	BatchJobsPerSeed       int           `env:"BATCH_JOBS_PER_SEED" envDefault:"100"`
	InvocationsPerBatchJob int           `env:"BATCH_INVOCATIONS_PER_JOB" envDefault:"1"`
	BatchPollTime          time.Duration `env:"BATCH_POLL_TIME" envDefault:"30s"`

	// Persistence. "batched" sends staged operations in one round trip,
	// "sequential" applies them one statement at a time.
	FlushMode string `env:"FLUSH_MODE" envDefault:"batched"`
}

// Load parses the configuration from the environment, applying defaults for
// unset variables.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Default returns the configuration with every default applied and nothing
// read from the environment.
func Default() Config {
	return Config{
		DatabaseURL:            "jobs.db",
		MaxJobsPerAcquisition:  3,
		LockDuration:           5 * time.Minute,
		IdleWaitMin:            50 * time.Millisecond,
		IdleWaitMax:            60 * time.Second,
		WorkerPoolSize:         4,
		QueueSize:              8,
		SubmitTimeout:          100 * time.Millisecond,
		DefaultRetries:         3,
		RetryBackoffBase:       10 * time.Second,
		RetryBackoffMax:        5 * time.Minute,
		BatchJobsPerSeed:       100,
		InvocationsPerBatchJob: 1,
		BatchPollTime:          30 * time.Second,
		FlushMode:              "batched",
	}
}
