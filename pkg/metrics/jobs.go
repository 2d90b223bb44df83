package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records outcomes of scheduled jobs.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

// NewJobMetrics registers the job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduled_job_duration_seconds",
		Help:    "Duration of scheduled jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduled_job_runs_total",
		Help: "Scheduled job executions by result.",
	}, []string{"job", "result"})
	reg.MustRegister(duration, runs)
	return &JobMetrics{duration: duration, runs: runs}
}

// ObserveJob records one execution of the named job.
func (m *JobMetrics) ObserveJob(job string, duration time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	if job == "" {
		job = "unknown"
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.duration.WithLabelValues(job).Observe(duration.Seconds())
	m.runs.WithLabelValues(job, result).Inc()
}
