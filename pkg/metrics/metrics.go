// Package metrics provides Prometheus instrumentation for the job executor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the executor's counters and gauges, registered against an
// injected registerer so multiple executors or tests do not collide on a
// global registry.
type Metrics struct {
	AcquisitionCycles   prometheus.Counter
	JobsAcquired        prometheus.Counter
	AcquisitionRaceLoss prometheus.Counter
	JobsExecuted        prometheus.Counter
	JobsFailed          prometheus.Counter
	RejectedSubmissions prometheus.Counter
	JobsInFlight        prometheus.Gauge
}

// New registers the executor metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AcquisitionCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchjobs_acquisition_cycles_total",
			Help: "Acquisition cycles run",
		}),
		JobsAcquired: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchjobs_jobs_acquired_total",
			Help: "Jobs locked by this executor",
		}),
		AcquisitionRaceLoss: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchjobs_acquisition_race_losses_total",
			Help: "Lock attempts lost to a concurrent acquirer",
		}),
		JobsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchjobs_jobs_executed_total",
			Help: "Jobs executed successfully",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchjobs_jobs_failed_total",
			Help: "Job executions that ended in a handler failure",
		}),
		RejectedSubmissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "batchjobs_rejected_submissions_total",
			Help: "Worker pool submissions that fell back to synchronous execution",
		}),
		JobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "batchjobs_jobs_in_flight",
			Help: "Jobs currently executing",
		}),
	}
}

// Nop returns metrics backed by a throwaway registry, for callers that do not
// scrape.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
