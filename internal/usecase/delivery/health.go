package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"postbridge/internal/domain/entity"
	"postbridge/internal/repository"
)

// Score is the bucketed health of the pipeline over a window.
type Score string

const (
	ScoreHealthy  Score = "healthy"  // success rate >= 0.95
	ScoreDegraded Score = "degraded" // success rate >= 0.80
	ScoreCritical Score = "critical" // anything below
)

func (s Score) gaugeValue() float64 {
	switch s {
	case ScoreHealthy:
		return 2
	case ScoreDegraded:
		return 1
	default:
		return 0
	}
}

// WindowReport aggregates delivery outcomes over one trailing window.
type WindowReport struct {
	Window      string  `json:"window"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	Retrying    int64   `json:"retrying"`
	SuccessRate float64 `json:"success_rate"`
	Score       Score   `json:"score"`
}

// HealthReport is the monitor's full picture at one point in time.
type HealthReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Windows     []WindowReport `json:"windows"`
	RetryTotal  int64          `json:"retry_queue_total"`
	RetryDue    int64          `json:"retry_queue_due"`
	Alert       bool           `json:"alert"`
	AlertReason string         `json:"alert_reason,omitempty"`
}

// MonitorConfig tunes the health monitor.
type MonitorConfig struct {
	// AlertThreshold is the windowed failure fraction (over the short
	// window) above which the failure alert raises. Default 0.25.
	AlertThreshold float64
}

// Monitor periodically aggregates delivery state into a health report. It is
// read-only and fail-open: a failed aggregation logs and keeps the previous
// report.
type Monitor struct {
	deliveries repository.DeliveryRepository
	cfg        MonitorConfig

	mu     sync.RWMutex
	latest *HealthReport
}

// monitored windows, shortest first. Alerting keys off the first entry.
var monitorWindows = []struct {
	label string
	d     time.Duration
}{
	{"1h", time.Hour},
	{"24h", 24 * time.Hour},
}

// NewMonitor creates a health monitor.
func NewMonitor(deliveries repository.DeliveryRepository, cfg MonitorConfig) *Monitor {
	if cfg.AlertThreshold <= 0 || cfg.AlertThreshold >= 1 {
		cfg.AlertThreshold = 0.25
	}
	return &Monitor{
		deliveries: deliveries,
		cfg:        cfg,
	}
}

// Report aggregates the current delivery health, publishes it to the gauges,
// and stores it for the HTTP endpoint.
func (m *Monitor) Report(ctx context.Context) (*HealthReport, error) {
	now := time.Now()
	report := &HealthReport{GeneratedAt: now}

	for _, window := range monitorWindows {
		counts, err := m.deliveries.CountByStatusSince(ctx, now.Add(-window.d))
		if err != nil {
			return nil, fmt.Errorf("Report: count window %s: %w", window.label, err)
		}

		wr := WindowReport{
			Window:   window.label,
			Success:  counts[entity.DeliverySuccess],
			Failed:   counts[entity.DeliveryFailed],
			Pending:  counts[entity.DeliveryPending],
			Retrying: counts[entity.DeliveryRetrying],
		}
		wr.SuccessRate = successRate(wr.Success, wr.Failed)
		wr.Score = scoreFor(wr.SuccessRate)
		report.Windows = append(report.Windows, wr)

		SetWindowHealth(window.label, wr.SuccessRate, wr.Score)
	}

	depth, err := m.deliveries.CountRetryQueue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("Report: count retry queue: %w", err)
	}
	report.RetryTotal = depth.Total
	report.RetryDue = depth.Due
	SetRetryQueueDepth(float64(depth.Total), float64(depth.Due))

	// Alert on the short window: recent failures matter, day-old ones are
	// already visible in the score.
	short := report.Windows[0]
	if completed := short.Success + short.Failed; completed > 0 {
		failurePct := float64(short.Failed) / float64(completed)
		if failurePct > m.cfg.AlertThreshold {
			report.Alert = true
			report.AlertReason = fmt.Sprintf(
				"failure rate %.0f%% over %s exceeds threshold %.0f%%",
				failurePct*100, short.Window, m.cfg.AlertThreshold*100)
		}
	}
	SetFailureAlert(report.Alert)

	if report.Alert {
		slog.Warn("delivery health alert",
			slog.String("reason", report.AlertReason),
			slog.Int64("retry_queue_total", report.RetryTotal),
			slog.Int64("retry_queue_due", report.RetryDue))
	} else {
		slog.Info("delivery health report",
			slog.String("score_1h", string(report.Windows[0].Score)),
			slog.Float64("success_rate_1h", report.Windows[0].SuccessRate),
			slog.Int64("retry_queue_total", report.RetryTotal))
	}

	m.mu.Lock()
	m.latest = report
	m.mu.Unlock()

	return report, nil
}

// Latest returns the most recent report, or nil before the first run.
func (m *Monitor) Latest() *HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// successRate is success / (success + failed); a window with no completed
// deliveries counts as fully healthy.
func successRate(success, failed int64) float64 {
	completed := success + failed
	if completed == 0 {
		return 1.0
	}
	return float64(success) / float64(completed)
}

func scoreFor(rate float64) Score {
	switch {
	case rate >= 0.95:
		return ScoreHealthy
	case rate >= 0.80:
		return ScoreDegraded
	default:
		return ScoreCritical
	}
}
