package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"postbridge/internal/observability/tracing"
	"postbridge/internal/repository"
)

// SweeperConfig tunes the retry sweeper.
type SweeperConfig struct {
	// BatchSize caps how many due retries one sweep re-enqueues.
	BatchSize int

	// Parallelism bounds concurrent enqueues within one sweep.
	Parallelism int
}

// DefaultSweeperConfig returns the sweeper defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		BatchSize:   100,
		Parallelism: 8,
	}
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	// Checked is how many due records the sweep examined.
	Checked int

	// Retried is how many of them were accepted by the scheduler.
	Retried int
}

// Sweeper periodically re-enqueues deliveries whose backoff window has
// passed. It only reads delivery state; all mutation stays with the posting
// worker, so a sweep racing a worker run is harmless.
type Sweeper struct {
	deliveries repository.DeliveryRepository
	scheduler  Scheduler
	cfg        SweeperConfig
}

// NewSweeper creates a retry sweeper.
func NewSweeper(deliveries repository.DeliveryRepository, scheduler Scheduler, cfg SweeperConfig) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweeperConfig().BatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultSweeperConfig().Parallelism
	}
	return &Sweeper{
		deliveries: deliveries,
		scheduler:  scheduler,
		cfg:        cfg,
	}
}

// Sweep finds due retries and hands them to the scheduler.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "delivery.sweep")
	defer span.End()

	now := time.Now()
	due, err := s.deliveries.ListDueRetries(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return SweepReport{}, fmt.Errorf("Sweep: list due retries: %w", err)
	}

	if len(due) == 0 {
		slog.Debug("sweep found no due retries")
		return SweepReport{}, nil
	}

	var retried atomic.Int64
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)

	for _, rec := range due {
		postID := rec.PostID
		g.Go(func() error {
			if err := s.scheduler.Enqueue(postID); err != nil {
				// Dropped runs stay retrying and come back next sweep.
				slog.Warn("sweep enqueue rejected",
					slog.Int64("post_id", postID),
					slog.Any("error", err))
				return nil
			}
			retried.Add(1)
			return nil
		})
	}
	// Rejections are absorbed above; Wait only joins the goroutines.
	_ = g.Wait()

	report := SweepReport{
		Checked: len(due),
		Retried: int(retried.Load()),
	}
	RecordSweeperRequeued(float64(report.Retried))

	slog.Info("sweep complete",
		slog.Int("checked", report.Checked),
		slog.Int("retried", report.Retried))
	return report, nil
}
