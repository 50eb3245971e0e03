// Package metrics exposes Prometheus collectors for job and chunk
// throughput. Counters follow the RED convention: rate, errors, duration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector groups every metric the service reports
type Collector struct {
	jobsCreated  prometheus.Counter
	jobsFinished *prometheus.CounterVec
	jobDuration  prometheus.Histogram

	chunksSubmitted prometheus.Counter
	chunksFailed    prometheus.Counter

	operandOutcomes *prometheus.CounterVec
}

// NewCollector creates and registers all collectors against reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solbatch_jobs_created_total",
			Help: "Total number of jobs created",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solbatch_jobs_finished_total",
			Help: "Total number of jobs reaching a terminal status",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solbatch_job_duration_seconds",
			Help:    "Wall time from job start to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		chunksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solbatch_chunks_submitted_total",
			Help: "Total number of transaction chunks submitted to the ledger",
		}),
		chunksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solbatch_chunks_failed_total",
			Help: "Total number of transaction chunks whose submission failed",
		}),
		operandOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solbatch_operand_outcomes_total",
			Help: "Per-operand outcomes across all bulk operations",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.jobsCreated,
		c.jobsFinished,
		c.jobDuration,
		c.chunksSubmitted,
		c.chunksFailed,
		c.operandOutcomes,
	)
	return c
}

// JobCreated records a new job entering the registry
func (c *Collector) JobCreated() {
	c.jobsCreated.Inc()
}

// JobFinished records a terminal transition and its duration
func (c *Collector) JobFinished(status string, elapsed time.Duration) {
	c.jobsFinished.WithLabelValues(status).Inc()
	c.jobDuration.Observe(elapsed.Seconds())
}

// ChunkSubmitted records one transaction submission attempt
func (c *Collector) ChunkSubmitted(failed bool) {
	c.chunksSubmitted.Inc()
	if failed {
		c.chunksFailed.Inc()
	}
}

// OperandOutcome records the outcome class for a single operand:
// "success", "failure", or "skipped"
func (c *Collector) OperandOutcome(outcome string, n int) {
	c.operandOutcomes.WithLabelValues(outcome).Add(float64(n))
}
