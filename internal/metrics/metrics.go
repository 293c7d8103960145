// Package metrics exposes the worker's job-throughput counters to
// Prometheus, grounded on the pack's own pkg/metrics package (package-level
// collectors registered in init, a promhttp.Handler for cmd/mnmd to mount).
// internal/worker drives job lifecycle end to end, so its dispatch loop is
// where these counters are incremented.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnmd_jobs_total",
			Help: "Total number of jobs dispatched, by action and outcome.",
		},
		[]string{"action", "status"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mnmd_job_duration_seconds",
			Help:    "Wall-clock duration of a dispatched job, by action.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	RunningJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mnmd_running_jobs",
			Help: "Number of jobs currently executing.",
		},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal, JobDuration, RunningJobs)
}

// Handler serves the Prometheus exposition format, mounted by cmd/mnmd at
// /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
