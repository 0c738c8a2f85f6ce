package delivery

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Scheduler hands delivery runs to the posting workers.
//
// Enqueue requests a run as soon as a worker is free; it never blocks and
// returns ErrQueueFull or ErrSchedulerStopped when the run was not accepted.
// ScheduleRetry requests a run after the given delay. Duplicate scheduling is
// allowed: the worker's own state re-check absorbs runs that are no longer
// needed.
type Scheduler interface {
	Enqueue(postID int64) error
	ScheduleRetry(postID int64, delay time.Duration)
}

// Deliverer executes one delivery run. Implemented by Worker.
type Deliverer interface {
	Deliver(ctx context.Context, postID int64) (*Result, error)
}

// QueueConfig tunes the in-process scheduler.
type QueueConfig struct {
	// Depth is the queue capacity. Enqueue drops when the queue is full;
	// the sweeper recovers dropped retries later.
	Depth int

	// Workers is the number of concurrent posting workers.
	Workers int

	// NativeRetry re-arms a timer inside the process when a run leaves a
	// record in the retrying state. Off by default: the cron sweeper is the
	// source of truth for due retries, and native timers do not survive a
	// restart. The worker's state re-check absorbs the overlap when both
	// are active.
	NativeRetry bool
}

// DefaultQueueConfig returns the scheduler defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Depth:       128,
		Workers:     4,
		NativeRetry: false,
	}
}

// InProcessScheduler runs deliveries on a bounded channel drained by a fixed
// worker pool. It is the only Scheduler implementation; a broker-backed one
// would slot in behind the same interface.
type InProcessScheduler struct {
	cfg       QueueConfig
	deliverer Deliverer
	tasks     chan int64

	mu      sync.Mutex
	stopped bool
	timers  []*time.Timer

	wg             sync.WaitGroup
	timerWG        sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewInProcessScheduler creates a scheduler; call Start before enqueuing.
func NewInProcessScheduler(cfg QueueConfig, deliverer Deliverer) *InProcessScheduler {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultQueueConfig().Depth
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultQueueConfig().Workers
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	return &InProcessScheduler{
		cfg:            cfg,
		deliverer:      deliverer,
		tasks:          make(chan int64, cfg.Depth),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}
}

// Start launches the worker pool.
func (s *InProcessScheduler) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.runWorker(i)
	}
	slog.Info("delivery scheduler started",
		slog.Int("workers", s.cfg.Workers),
		slog.Int("queue_depth", s.cfg.Depth),
		slog.Bool("native_retry", s.cfg.NativeRetry))
}

// Enqueue implements Scheduler.Enqueue. It never blocks: a full queue drops
// the run, counts the drop, and relies on the sweeper to recover it.
func (s *InProcessScheduler) Enqueue(postID int64) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		slog.Warn("enqueue after shutdown", slog.Int64("post_id", postID))
		return ErrSchedulerStopped
	}
	s.mu.Unlock()

	select {
	case s.tasks <- postID:
		SetQueueDepth(float64(len(s.tasks)))
		return nil
	default:
		slog.Warn("delivery queue full, dropping run", slog.Int64("post_id", postID))
		RecordQueueDropped()
		return ErrQueueFull
	}
}

// ScheduleRetry implements Scheduler.ScheduleRetry.
func (s *InProcessScheduler) ScheduleRetry(postID int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.timerWG.Add(1)
	timer := time.AfterFunc(delay, func() {
		defer s.timerWG.Done()
		if err := s.Enqueue(postID); err != nil {
			// The record stays retrying, so the sweeper picks it up.
			slog.Warn("native retry dropped",
				slog.Int64("post_id", postID),
				slog.Any("error", err))
		}
	})
	s.timers = append(s.timers, timer)
}

// runWorker drains the task channel until shutdown.
func (s *InProcessScheduler) runWorker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.shutdownCtx.Done():
			return
		case postID := <-s.tasks:
			SetQueueDepth(float64(len(s.tasks)))
			s.runDelivery(id, postID)
		}
	}
}

// runDelivery executes one delivery with panic isolation so a single bad run
// cannot take a worker out of the pool.
func (s *InProcessScheduler) runDelivery(workerID int, postID int64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in delivery worker",
				slog.Int("worker", workerID),
				slog.Int64("post_id", postID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	result, err := s.deliverer.Deliver(s.shutdownCtx, postID)
	if err != nil {
		slog.Error("delivery run failed",
			slog.Int("worker", workerID),
			slog.Int64("post_id", postID),
			slog.Any("error", err))
		return
	}

	if s.cfg.NativeRetry && result.Outcome == OutcomeRetryScheduled {
		rec := result.Record
		if rec != nil && rec.NextRetryAt != nil {
			delay := time.Until(*rec.NextRetryAt)
			if delay < 0 {
				delay = 0
			}
			s.ScheduleRetry(postID, delay)
		}
	}
}

// Shutdown stops accepting work and waits for in-flight runs to finish or
// the context to expire.
func (s *InProcessScheduler) Shutdown(ctx context.Context) error {
	slog.Info("shutting down delivery scheduler")

	s.mu.Lock()
	s.stopped = true
	for _, timer := range s.timers {
		if timer.Stop() {
			s.timerWG.Done()
		}
	}
	s.timers = nil
	s.mu.Unlock()

	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.timerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("delivery scheduler shutdown complete")
		return nil
	case <-ctx.Done():
		slog.Warn("delivery scheduler shutdown timeout")
		return ctx.Err()
	}
}
