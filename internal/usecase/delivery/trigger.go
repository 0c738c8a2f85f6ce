package delivery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"postbridge/internal/domain/entity"
)

// ConfigGate reports whether the platform integration may attempt
// deliveries. Implemented by platform.Config.
type ConfigGate interface {
	Active() bool
}

// PublishEvent is the ephemeral fact that a post transitioned to published.
// Created distinguishes a first publish from a republish of an existing post;
// the decision table below treats both alike, since the delivery record, not
// the event, carries the authoritative state. GuardToken deduplicates
// re-entrant dispatch of the same save operation.
type PublishEvent struct {
	PostID     int64
	Created    bool
	GuardToken string
}

// NewPublishEvent builds an event with a fresh guard token.
func NewPublishEvent(postID int64, created bool) PublishEvent {
	return PublishEvent{
		PostID:     postID,
		Created:    created,
		GuardToken: uuid.New().String(),
	}
}

// Trigger decides, on every publish event, whether a delivery run should be
// enqueued. It runs synchronously inside the content-save path, performs no
// network I/O, and never returns an error: any failure is logged and the
// save proceeds.
//
// Decision table:
//   - platform not configured           → skip
//   - no record yet                     → create pending record + enqueue
//   - record pending or retrying        → no-op (a run is already owed)
//   - record success                    → no-op (delivered)
//   - record failed, attempts left      → enqueue another run
//   - record failed, budget spent       → no-op (terminal)
type Trigger struct {
	deliveries deliveryStore
	gate       ConfigGate
	scheduler  Scheduler

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// deliveryStore is the slice of the repository the trigger needs.
type deliveryStore interface {
	CreateIfAbsent(ctx context.Context, postID int64, maxAttempts int) (*entity.DeliveryRecord, bool, error)
}

// NewTrigger creates a publish-event trigger.
func NewTrigger(deliveries deliveryStore, gate ConfigGate, scheduler Scheduler) *Trigger {
	return &Trigger{
		deliveries: deliveries,
		gate:       gate,
		scheduler:  scheduler,
		inFlight:   make(map[string]struct{}),
	}
}

// HandlePostPublished processes one publish event. The returned error is
// always nil; the signature keeps the call site uniform with other handlers.
func (t *Trigger) HandlePostPublished(ctx context.Context, event PublishEvent) error {
	if event.PostID <= 0 {
		slog.Warn("publish event with invalid post id", slog.Int64("post_id", event.PostID))
		RecordTriggerDecision("error")
		return nil
	}

	// Guard-token re-entrancy: the same event dispatched twice during one
	// save is dropped, not re-evaluated.
	if event.GuardToken != "" {
		t.mu.Lock()
		if _, dup := t.inFlight[event.GuardToken]; dup {
			t.mu.Unlock()
			slog.Debug("duplicate publish event dropped",
				slog.Int64("post_id", event.PostID),
				slog.String("guard_token", event.GuardToken))
			RecordTriggerDecision("duplicate")
			return nil
		}
		t.inFlight[event.GuardToken] = struct{}{}
		t.mu.Unlock()

		defer func() {
			t.mu.Lock()
			delete(t.inFlight, event.GuardToken)
			t.mu.Unlock()
		}()
	}

	if !t.gate.Active() {
		slog.Debug("publish event ignored: platform not configured",
			slog.Int64("post_id", event.PostID))
		RecordTriggerDecision("inactive")
		return nil
	}

	rec, created, err := t.deliveries.CreateIfAbsent(ctx, event.PostID, entity.DefaultMaxAttempts)
	if err != nil {
		// The save must not fail because syndication bookkeeping did.
		slog.Error("publish event dropped: record lookup failed",
			slog.Int64("post_id", event.PostID),
			slog.Any("error", err))
		RecordTriggerDecision("error")
		return nil
	}

	if created {
		if !event.Created {
			// A republished post without prior delivery state, typically one
			// that was unpublished before its first delivery ran.
			slog.Debug("republish event created first delivery record",
				slog.Int64("post_id", event.PostID))
		}
		t.enqueue(event.PostID, "created")
		return nil
	}

	switch {
	case rec.Status == entity.DeliverySuccess:
		slog.Debug("publish event ignored: already delivered",
			slog.Int64("post_id", event.PostID))
		RecordTriggerDecision("already_delivered")
	case rec.InFlight():
		slog.Debug("publish event ignored: delivery already in flight",
			slog.Int64("post_id", event.PostID),
			slog.String("status", string(rec.Status)))
		RecordTriggerDecision("in_flight")
	case rec.RetryEligible():
		t.enqueue(event.PostID, "failed_retry")
	default:
		slog.Info("publish event ignored: attempt budget spent",
			slog.Int64("post_id", event.PostID),
			slog.Int("attempts", rec.AttemptCount))
		RecordTriggerDecision("exhausted")
	}
	return nil
}

func (t *Trigger) enqueue(postID int64, reason string) {
	if err := t.scheduler.Enqueue(postID); err != nil {
		// Queue full or stopped: the record exists, so the sweeper or a
		// later publish event recovers it.
		slog.Warn("delivery enqueue rejected",
			slog.Int64("post_id", postID),
			slog.String("reason", reason),
			slog.Any("error", err))
		RecordTriggerDecision("error")
		return
	}
	slog.Info("delivery enqueued",
		slog.Int64("post_id", postID),
		slog.String("reason", reason))
	RecordTriggerDecision("enqueued")
}
