package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"postbridge/internal/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for the worker binary. It embeds
// the standard ConfigMetrics for configuration fallback monitoring and adds
// cron job execution tracking for the three background jobs (sweep, monitor,
// janitor).
type WorkerMetrics struct {
	*config.ConfigMetrics

	// CronJobRunsTotal counts cron job runs by job and status.
	CronJobRunsTotal *prometheus.CounterVec

	// CronJobDurationSeconds measures cron job execution time by job.
	CronJobDurationSeconds *prometheus.HistogramVec

	// CronJobLastSuccessTimestamp records the last successful run per job.
	CronJobLastSuccessTimestamp *prometheus.GaugeVec
}

// Job labels for the cron metrics.
const (
	JobSweep   = "sweep"
	JobMonitor = "monitor"
	JobJanitor = "janitor"
)

// NewWorkerMetrics creates the worker metrics. Registration happens via
// promauto at construction time.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		CronJobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total number of cron job runs by job and status",
		}, []string{"job", "status"}),

		CronJobDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Duration of cron job execution in seconds",
			Buckets: []float64{0.05, 0.25, 1, 5, 30, 60, 300},
		}, []string{"job"}),

		CronJobLastSuccessTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful cron job run",
		}, []string{"job"}),
	}
}

// RecordJobRun increments the run counter for a job with the given status
// ("success" or "failure").
func (m *WorkerMetrics) RecordJobRun(job, status string) {
	m.CronJobRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordJobDuration observes one job execution duration in seconds.
func (m *WorkerMetrics) RecordJobDuration(job string, seconds float64) {
	m.CronJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// RecordLastSuccess marks the current time as the job's last successful run.
func (m *WorkerMetrics) RecordLastSuccess(job string) {
	m.CronJobLastSuccessTimestamp.WithLabelValues(job).SetToCurrentTime()
}
