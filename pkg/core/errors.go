package core

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound = errors.New("batchjobs: job not found")

	// ErrJobNotLocked is returned when an execution task reloads its job and
	// finds it no longer locked by this executor, e.g. because the lock
	// expired and another acquirer reclaimed it. Not an error condition; the
	// task aborts without side effects.
	ErrJobNotLocked = errors.New("batchjobs: job not locked by this executor")

	ErrUnknownHandler = errors.New("batchjobs: no handler registered for job type")
)

// BatchNotFoundError indicates that a seed or monitor job referenced a batch
// that does not exist. Outside of monitor-job cleanup races this is a
// consistency violation and is never silently swallowed.
type BatchNotFoundError struct {
	BatchID string
}

func (e *BatchNotFoundError) Error() string {
	return fmt.Sprintf("Batch for id '%s' cannot be found", e.BatchID)
}
