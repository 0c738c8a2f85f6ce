package worker

import (
	"fmt"
	"log/slog"
	"time"

	"postbridge/internal/pkg/config"
)

// WorkerConfig holds the operational configuration for the delivery worker
// binary: cron schedules for the background jobs, queue sizing, the submit
// timeout, retention windows, and the health server port.
//
// Loading is fail-open: an invalid environment value falls back to the
// default, logs a warning, and increments the config metrics. The worker
// must come up even with a broken environment.
type WorkerConfig struct {
	// SweepSchedule is the cron expression for the retry sweeper.
	// Default: every 2 minutes.
	SweepSchedule string

	// MonitorSchedule is the cron expression for the health monitor.
	// Default: every 5 minutes.
	MonitorSchedule string

	// JanitorSchedule is the cron expression for the retention janitor.
	// Default: daily at 04:30.
	JanitorSchedule string

	// Timezone is the IANA timezone for cron scheduling. Default: UTC.
	Timezone string

	// QueueDepth is the in-process delivery queue capacity.
	QueueDepth int

	// QueueWorkers is the posting worker pool size.
	QueueWorkers int

	// SubmitTimeout bounds a single platform submit call.
	SubmitTimeout time.Duration

	// SuccessRetention is how long delivered records are kept.
	SuccessRetention time.Duration

	// FailedRetention is how long terminally failed records are kept.
	FailedRetention time.Duration

	// AlertThresholdPct is the failure percentage (1-99) over the short
	// health window that raises the delivery alert.
	AlertThresholdPct int

	// HealthPort is the port for the health/metrics HTTP server.
	HealthPort int
}

// DefaultConfig returns production-ready defaults: a 2-minute sweep cadence
// keeps retry latency well under the minimum 30s backoff granularity, and
// the daily janitor run is scheduled off-peak.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		SweepSchedule:     "*/2 * * * *",
		MonitorSchedule:   "*/5 * * * *",
		JanitorSchedule:   "30 4 * * *",
		Timezone:          "UTC",
		QueueDepth:        128,
		QueueWorkers:      4,
		SubmitTimeout:     15 * time.Second,
		SuccessRetention:  90 * 24 * time.Hour,
		FailedRetention:   30 * 24 * time.Hour,
		AlertThresholdPct: 25,
		HealthPort:        9091,
	}
}

// AlertThreshold returns the alert threshold as a fraction.
func (c *WorkerConfig) AlertThreshold() float64 {
	return float64(c.AlertThresholdPct) / 100
}

// Validate checks the configuration values, collecting all failures.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("sweep schedule: %w", err))
	}
	if err := config.ValidateCronSchedule(c.MonitorSchedule); err != nil {
		errs = append(errs, fmt.Errorf("monitor schedule: %w", err))
	}
	if err := config.ValidateCronSchedule(c.JanitorSchedule); err != nil {
		errs = append(errs, fmt.Errorf("janitor schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.QueueDepth, 1, 10000); err != nil {
		errs = append(errs, fmt.Errorf("queue depth: %w", err))
	}
	if err := config.ValidateIntRange(c.QueueWorkers, 1, 50); err != nil {
		errs = append(errs, fmt.Errorf("queue workers: %w", err))
	}
	if err := config.ValidateDuration(c.SubmitTimeout, time.Second, 2*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("submit timeout: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.SuccessRetention); err != nil {
		errs = append(errs, fmt.Errorf("success retention: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.FailedRetention); err != nil {
		errs = append(errs, fmt.Errorf("failed retention: %w", err))
	}
	if err := config.ValidateIntRange(c.AlertThresholdPct, 1, 99); err != nil {
		errs = append(errs, fmt.Errorf("alert threshold: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration from environment
// variables with validation and fail-open fallback to defaults.
//
// Environment variables:
//   - DELIVERY_SWEEP_CRON: sweep cron expression (default "*/2 * * * *")
//   - DELIVERY_MONITOR_CRON: monitor cron expression (default "*/5 * * * *")
//   - DELIVERY_JANITOR_CRON: janitor cron expression (default "30 4 * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default "UTC")
//   - DELIVERY_QUEUE_DEPTH: integer 1-10000 (default 128)
//   - DELIVERY_QUEUE_WORKERS: integer 1-50 (default 4)
//   - DELIVERY_SUBMIT_TIMEOUT: duration 1s-2m (default 15s)
//   - DELIVERY_SUCCESS_RETENTION: duration (default 2160h = 90d)
//   - DELIVERY_FAILED_RETENTION: duration (default 720h = 30d)
//   - DELIVERY_ALERT_THRESHOLD_PCT: integer 1-99 (default 25)
//   - WORKER_HEALTH_PORT: integer 1024-65535 (default 9091)
//
// The returned error is always nil; the signature matches the other config
// loaders.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	noteFallback := func(field string, warnings []string) {
		fallbackApplied = true
		metrics.RecordValidationError(field)
		metrics.RecordFallback(field)
		for _, warning := range warnings {
			logger.Warn("configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}

	loadString := func(envKey, field string, target *string, validator func(string) error) {
		result := config.String(envKey, *target, validator)
		*target = result.Value
		if result.FallbackApplied {
			noteFallback(field, result.Warnings)
		}
	}

	loadInt := func(envKey, field string, target *int, min, max int) {
		result := config.Int(envKey, *target, func(v int) error {
			return config.ValidateIntRange(v, min, max)
		})
		*target = result.Value
		if result.FallbackApplied {
			noteFallback(field, result.Warnings)
		}
	}

	loadDuration := func(envKey, field string, target *time.Duration, validator func(time.Duration) error) {
		result := config.Duration(envKey, *target, validator)
		*target = result.Value
		if result.FallbackApplied {
			noteFallback(field, result.Warnings)
		}
	}

	loadString("DELIVERY_SWEEP_CRON", "sweep_schedule", &cfg.SweepSchedule, config.ValidateCronSchedule)
	loadString("DELIVERY_MONITOR_CRON", "monitor_schedule", &cfg.MonitorSchedule, config.ValidateCronSchedule)
	loadString("DELIVERY_JANITOR_CRON", "janitor_schedule", &cfg.JanitorSchedule, config.ValidateCronSchedule)
	loadString("WORKER_TIMEZONE", "timezone", &cfg.Timezone, config.ValidateTimezone)

	loadInt("DELIVERY_QUEUE_DEPTH", "queue_depth", &cfg.QueueDepth, 1, 10000)
	loadInt("DELIVERY_QUEUE_WORKERS", "queue_workers", &cfg.QueueWorkers, 1, 50)
	loadInt("DELIVERY_ALERT_THRESHOLD_PCT", "alert_threshold", &cfg.AlertThresholdPct, 1, 99)
	loadInt("WORKER_HEALTH_PORT", "health_port", &cfg.HealthPort, 1024, 65535)

	loadDuration("DELIVERY_SUBMIT_TIMEOUT", "submit_timeout", &cfg.SubmitTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Second, 2*time.Minute)
	})
	loadDuration("DELIVERY_SUCCESS_RETENTION", "success_retention", &cfg.SuccessRetention, config.ValidatePositiveDuration)
	loadDuration("DELIVERY_FAILED_RETENTION", "failed_retention", &cfg.FailedRetention, config.ValidatePositiveDuration)

	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
