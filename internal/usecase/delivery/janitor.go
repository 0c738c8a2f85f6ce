package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"postbridge/internal/domain/entity"
	"postbridge/internal/repository"
)

// JanitorConfig tunes the retention janitor.
type JanitorConfig struct {
	// SuccessRetention is how long delivered records are kept. Default 90d.
	SuccessRetention time.Duration

	// FailedRetention is how long terminally failed records are kept, long
	// enough for postmortems. Default 30d.
	FailedRetention time.Duration
}

// DefaultJanitorConfig returns the retention defaults.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		SuccessRetention: 90 * 24 * time.Hour,
		FailedRetention:  30 * 24 * time.Hour,
	}
}

// PurgeReport summarizes one janitor run.
type PurgeReport struct {
	SuccessPurged int64
	FailedPurged  int64
}

// Janitor deletes terminal delivery records past their retention window.
// Pending and retrying records are never candidates; the repository enforces
// that independently.
type Janitor struct {
	deliveries repository.DeliveryRepository
	cfg        JanitorConfig
}

// NewJanitor creates a retention janitor.
func NewJanitor(deliveries repository.DeliveryRepository, cfg JanitorConfig) *Janitor {
	if cfg.SuccessRetention <= 0 {
		cfg.SuccessRetention = DefaultJanitorConfig().SuccessRetention
	}
	if cfg.FailedRetention <= 0 {
		cfg.FailedRetention = DefaultJanitorConfig().FailedRetention
	}
	return &Janitor{
		deliveries: deliveries,
		cfg:        cfg,
	}
}

// Purge deletes expired terminal records and reports per-bucket counts.
func (j *Janitor) Purge(ctx context.Context) (PurgeReport, error) {
	now := time.Now()
	var report PurgeReport

	purgedSuccess, err := j.deliveries.DeleteTerminalBefore(
		ctx, entity.DeliverySuccess, now.Add(-j.cfg.SuccessRetention))
	if err != nil {
		return report, fmt.Errorf("Purge: delete success records: %w", err)
	}
	report.SuccessPurged = purgedSuccess
	RecordPurged(string(entity.DeliverySuccess), float64(purgedSuccess))

	purgedFailed, err := j.deliveries.DeleteTerminalBefore(
		ctx, entity.DeliveryFailed, now.Add(-j.cfg.FailedRetention))
	if err != nil {
		return report, fmt.Errorf("Purge: delete failed records: %w", err)
	}
	report.FailedPurged = purgedFailed
	RecordPurged(string(entity.DeliveryFailed), float64(purgedFailed))

	if report.SuccessPurged > 0 || report.FailedPurged > 0 {
		slog.Info("retention purge complete",
			slog.Int64("success_purged", report.SuccessPurged),
			slog.Int64("failed_purged", report.FailedPurged))
	} else {
		slog.Debug("retention purge found nothing to delete")
	}
	return report, nil
}
