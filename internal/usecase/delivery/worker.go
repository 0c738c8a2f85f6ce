package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"postbridge/internal/domain/entity"
	"postbridge/internal/infra/platform"
	"postbridge/internal/observability/logging"
	"postbridge/internal/repository"
)

// Outcome is the result class of one delivery run.
type Outcome string

const (
	// OutcomeSuccess means the platform accepted the post.
	OutcomeSuccess Outcome = "success"

	// OutcomeRetryScheduled means the attempt failed with a retryable error
	// and the record now carries a next_retry_at for the sweeper.
	OutcomeRetryScheduled Outcome = "retry_scheduled"

	// OutcomeFailed means the attempt failed terminally: either a permanent
	// error or the attempt budget is spent.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkippedInactive means the platform integration is not
	// configured. No attempt was consumed; an existing live record is parked
	// as failed with the not_configured code so the trigger can revive it
	// once the integration is enabled.
	OutcomeSkippedInactive Outcome = "skipped_inactive"

	// OutcomeAlreadyDelivered means the record reached success before this
	// run started. Absorbs duplicate scheduling.
	OutcomeAlreadyDelivered Outcome = "already_delivered"

	// OutcomeExhausted means the record was already failed with no attempts
	// remaining when this run started.
	OutcomeExhausted Outcome = "attempts_exhausted"

	// OutcomeNotDue means the record is retrying with a future next_retry_at.
	// Absorbs duplicate scheduling ahead of the backoff window.
	OutcomeNotDue Outcome = "not_due"
)

// Result is the structured outcome of one delivery run.
type Result struct {
	Outcome Outcome
	Record  *entity.DeliveryRecord
}

// maxErrorMessageLen bounds what we persist from upstream error bodies.
const maxErrorMessageLen = 1024

// Error codes stored on the record for failures that never reached the
// platform. API failures store the platform.ErrorKind instead.
const (
	errCodeNotFound      = "not_found"
	errCodeNotPublished  = "not_published"
	errCodeNotConfigured = "not_configured"
)

// Worker executes delivery runs: it loads the delivery record and the post,
// performs exactly one submit against the platform, and persists the outcome
// in a single update.
//
// Every run starts with a state re-check so duplicate scheduling (trigger +
// sweeper + native retry overlapping) collapses into no-ops. A run is
// idempotent for terminal records.
type Worker struct {
	deliveries repository.DeliveryRepository
	posts      repository.PostRepository
	client     platform.Client
	gate       ConfigGate
	backoff    *Backoff

	submitTimeout time.Duration
}

// WorkerConfig tunes the posting worker.
type WorkerConfig struct {
	// SubmitTimeout bounds one platform submit call.
	SubmitTimeout time.Duration
}

// NewWorker creates a posting worker.
func NewWorker(
	deliveries repository.DeliveryRepository,
	posts repository.PostRepository,
	client platform.Client,
	gate ConfigGate,
	backoff *Backoff,
	cfg WorkerConfig,
) *Worker {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	return &Worker{
		deliveries:    deliveries,
		posts:         posts,
		client:        client,
		gate:          gate,
		backoff:       backoff,
		submitTimeout: cfg.SubmitTimeout,
	}
}

// Deliver runs one delivery for the post. It returns an error only for
// infrastructure failures (the record is left untouched in that case);
// attempt-level failures are absorbed into the record and the Result.
func (w *Worker) Deliver(ctx context.Context, postID int64) (*Result, error) {
	runID := uuid.New().String()
	ctx = logging.ContextWithRunID(ctx, runID)
	now := time.Now()

	// 1. Configuration gate. A disabled integration consumes nothing, but a
	// record already waiting on this run must not stay pending forever.
	if !w.gate.Active() {
		return w.skipInactive(ctx, runID, postID, now)
	}

	// 2. Load or lazily create the record. CreateIfAbsent absorbs the race
	// where the trigger's insert has not landed yet.
	rec, created, err := w.deliveries.CreateIfAbsent(ctx, postID, entity.DefaultMaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("Deliver: load record: %w", err)
	}
	if created {
		slog.Debug("delivery record created by worker",
			slog.String("run_id", runID),
			slog.Int64("post_id", postID))
	}

	// 3. State re-check. Duplicate or stale scheduling lands here.
	if skip := w.recheck(rec, now); skip != nil {
		slog.Info("delivery run absorbed by state re-check",
			slog.String("run_id", runID),
			slog.Int64("post_id", postID),
			slog.String("outcome", string(skip.Outcome)))
		RecordAttempt(skip.Outcome)
		return skip, nil
	}

	// 4. Load the post. A missing or unpublished post consumes the attempt
	// and is terminal: neither condition self-corrects from here.
	post, err := w.posts.Get(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("Deliver: load post: %w", err)
	}
	if post == nil {
		return w.persistFailure(ctx, runID, rec, now, errCodeNotFound,
			ErrPostNotFound.Error(), false)
	}
	if !post.Published {
		return w.persistFailure(ctx, runID, rec, now, errCodeNotPublished,
			ErrPostUnpublished.Error(), false)
	}

	// 5. One submit, bounded by the configured timeout.
	submitCtx, cancel := context.WithTimeout(ctx, w.submitTimeout)
	defer cancel()

	start := time.Now()
	submitted, err := w.client.Submit(submitCtx, post)
	RecordSubmitDuration(time.Since(start))

	// 6-7. Persist exactly one outcome.
	if err != nil {
		kind, retryable := Classify(err)
		return w.persistFailure(ctx, runID, rec, now, string(kind),
			truncate(err.Error(), maxErrorMessageLen), retryable)
	}
	return w.persistSuccess(ctx, runID, rec, now, submitted)
}

// skipInactive resolves a run that arrived while the integration is disabled.
// A live record (pending or retrying) is parked as failed with the
// not_configured code. The attempt count is untouched, so the record stays
// retry-eligible: re-enabling the integration and republishing the post
// restarts delivery with the full remaining budget.
func (w *Worker) skipInactive(ctx context.Context, runID string, postID int64, now time.Time) (*Result, error) {
	rec, err := w.deliveries.Get(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("Deliver: load record: %w", err)
	}

	if rec != nil && rec.InFlight() {
		rec.Status = entity.DeliveryFailed
		rec.ErrorCode = errCodeNotConfigured
		rec.ErrorMessage = ErrNotConfigured.Error()
		rec.NextRetryAt = nil
		rec.UpdatedAt = now
		if err := w.deliveries.UpdateResult(ctx, rec); err != nil {
			return nil, fmt.Errorf("Deliver: persist skip: %w", err)
		}
	}

	slog.Info("delivery skipped: platform not configured",
		slog.String("run_id", runID),
		slog.Int64("post_id", postID))
	result := &Result{Outcome: OutcomeSkippedInactive, Record: rec}
	RecordAttempt(result.Outcome)
	return result, nil
}

// recheck returns a skip Result when the record's current state makes an
// attempt unnecessary or premature, nil when the run should proceed.
func (w *Worker) recheck(rec *entity.DeliveryRecord, now time.Time) *Result {
	switch rec.Status {
	case entity.DeliverySuccess:
		return &Result{Outcome: OutcomeAlreadyDelivered, Record: rec}
	case entity.DeliveryFailed:
		if !rec.RetryEligible() {
			return &Result{Outcome: OutcomeExhausted, Record: rec}
		}
	case entity.DeliveryRetrying:
		if rec.NextRetryAt != nil && now.Before(*rec.NextRetryAt) {
			return &Result{Outcome: OutcomeNotDue, Record: rec}
		}
	}
	if rec.AttemptCount >= rec.MaxAttempts {
		return &Result{Outcome: OutcomeExhausted, Record: rec}
	}
	return nil
}

// persistSuccess records a platform-accepted delivery.
func (w *Worker) persistSuccess(
	ctx context.Context,
	runID string,
	rec *entity.DeliveryRecord,
	now time.Time,
	submitted *platform.SubmitResult,
) (*Result, error) {
	rec.Status = entity.DeliverySuccess
	rec.AttemptCount++
	rec.ErrorMessage = ""
	rec.ErrorCode = ""
	rec.ExternalPostID = submitted.ExternalPostID
	rec.ExternalPostURL = submitted.ExternalPostURL
	rec.PostedAt = &now
	rec.NextRetryAt = nil
	rec.UpdatedAt = now

	if err := w.deliveries.UpdateResult(ctx, rec); err != nil {
		return nil, fmt.Errorf("Deliver: persist success: %w", err)
	}

	slog.Info("post delivered",
		slog.String("run_id", runID),
		slog.Int64("post_id", rec.PostID),
		slog.String("external_post_id", rec.ExternalPostID),
		slog.Int("attempt", rec.AttemptCount))

	result := &Result{Outcome: OutcomeSuccess, Record: rec}
	RecordAttempt(result.Outcome)
	return result, nil
}

// persistFailure consumes the attempt and records either a scheduled retry
// or a terminal failure.
func (w *Worker) persistFailure(
	ctx context.Context,
	runID string,
	rec *entity.DeliveryRecord,
	now time.Time,
	errorCode, errorMessage string,
	retryable bool,
) (*Result, error) {
	// Zero-indexed retry counter: the attempt count before this increment.
	retryIndex := rec.AttemptCount

	rec.AttemptCount++
	rec.ErrorCode = errorCode
	rec.ErrorMessage = errorMessage
	rec.UpdatedAt = now

	var outcome Outcome
	if retryable && rec.AttemptCount < rec.MaxAttempts {
		next := now.Add(w.backoff.Delay(retryIndex))
		rec.Status = entity.DeliveryRetrying
		rec.NextRetryAt = &next
		outcome = OutcomeRetryScheduled
	} else {
		rec.Status = entity.DeliveryFailed
		rec.NextRetryAt = nil
		outcome = OutcomeFailed
	}

	if err := w.deliveries.UpdateResult(ctx, rec); err != nil {
		return nil, fmt.Errorf("Deliver: persist failure: %w", err)
	}

	if outcome == OutcomeRetryScheduled {
		RecordRetryScheduled(errorCode)
		slog.Warn("delivery failed, retry scheduled",
			slog.String("run_id", runID),
			slog.Int64("post_id", rec.PostID),
			slog.String("error_code", errorCode),
			slog.Int("attempt", rec.AttemptCount),
			slog.Int("max_attempts", rec.MaxAttempts),
			slog.Time("next_retry_at", *rec.NextRetryAt))
	} else {
		slog.Error("delivery failed terminally",
			slog.String("run_id", runID),
			slog.Int64("post_id", rec.PostID),
			slog.String("error_code", errorCode),
			slog.String("error", errorMessage),
			slog.Int("attempt", rec.AttemptCount),
			slog.Int("max_attempts", rec.MaxAttempts))
	}

	result := &Result{Outcome: outcome, Record: rec}
	RecordAttempt(result.Outcome)
	return result, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
