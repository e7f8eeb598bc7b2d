// Package metrics exposes archival run metrics to Prometheus and keeps a
// lock-free snapshot for the status endpoint.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "dbarchiver"

// Run outcomes used as the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Collector records per-job archival metrics. All methods are safe for
// concurrent use.
type Collector struct {
	registry *prometheus.Registry

	records     *prometheus.CounterVec
	batches     *prometheus.CounterVec
	runs        *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec

	runsTotal     atomic.Int64
	failuresTotal atomic.Int64
	recordsTotal  atomic.Int64
	batchesTotal  atomic.Int64
	totalDuration atomic.Int64 // nanoseconds
}

// New creates a collector registered on its own registry, together with the
// Go runtime and process collectors.
func New() *Collector {
	labels := []string{"job"}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_archived_total",
				Help:      "Number of records copied to the target.",
			},
			labels,
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Number of batches fully archived.",
			},
			labels,
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Number of archival runs by outcome.",
			},
			[]string{"job", "status"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of archival runs in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 4, 10),
			},
			labels,
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful run.",
			},
			labels,
		),
	}
	c.registry.MustRegister(
		c.records, c.batches, c.runs, c.durations, c.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// BatchArchived records one archived batch of n records for job.
func (c *Collector) BatchArchived(job string, n int) {
	c.records.WithLabelValues(job).Add(float64(n))
	c.batches.WithLabelValues(job).Inc()
	c.recordsTotal.Add(int64(n))
	c.batchesTotal.Add(1)
}

// RunFinished records the outcome of one run.
func (c *Collector) RunFinished(job string, elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		c.failuresTotal.Add(1)
	} else {
		c.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
	c.runs.WithLabelValues(job, status).Inc()
	c.durations.WithLabelValues(job).Observe(elapsed.Seconds())
	c.runsTotal.Add(1)
	c.totalDuration.Add(int64(elapsed))
}

// ForJob returns an observer bound to job, suitable for archive.Config.
func (c *Collector) ForJob(job string) JobObserver {
	return JobObserver{c: c, job: job}
}

// JobObserver forwards batch notifications for a single job.
type JobObserver struct {
	c   *Collector
	job string
}

// BatchArchived implements archive.Observer.
func (o JobObserver) BatchArchived(n int) {
	o.c.BatchArchived(o.job, n)
}

// Snapshot returns a point-in-time view of the process-wide counters.
func (c *Collector) Snapshot() Snapshot {
	runs := c.runsTotal.Load()
	snap := Snapshot{
		Runs:     runs,
		Failures: c.failuresTotal.Load(),
		Records:  c.recordsTotal.Load(),
		Batches:  c.batchesTotal.Load(),
	}
	if runs > 0 {
		snap.AvgDuration = time.Duration(c.totalDuration.Load() / runs)
	}
	return snap
}

// Snapshot is a serializable point-in-time metrics view.
type Snapshot struct {
	Runs        int64         `json:"runs"`
	Failures    int64         `json:"failures"`
	Records     int64         `json:"records"`
	Batches     int64         `json:"batches"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
}
