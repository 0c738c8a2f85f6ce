package delivery

import "errors"

// Sentinel errors for delivery use case operations.
var (
	// ErrPostNotFound indicates the post behind a delivery no longer exists.
	// The attempt is consumed and the record is marked failed; a missing post
	// will not reappear, so no retry is scheduled.
	ErrPostNotFound = errors.New("post not found")

	// ErrPostUnpublished indicates the post exists but is not published.
	// Treated like a validation failure: terminal, no retry.
	ErrPostUnpublished = errors.New("post is not published")

	// ErrNotConfigured indicates the platform integration is disabled or
	// missing credentials. A run in that state parks the record as failed
	// with the not_configured code but consumes no attempt, so enabling the
	// integration later restarts delivery with the full remaining budget.
	ErrNotConfigured = errors.New("platform integration not configured")

	// ErrQueueFull indicates the in-process delivery queue rejected an
	// enqueue. The record keeps its state; the sweeper picks it up later.
	ErrQueueFull = errors.New("delivery queue is full")

	// ErrSchedulerStopped indicates an enqueue after Shutdown began.
	ErrSchedulerStopped = errors.New("delivery scheduler is stopped")
)
