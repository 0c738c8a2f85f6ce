package repository

import (
	"context"
	"time"

	"postbridge/internal/domain/entity"
)

// RetryQueueDepth describes the retry backlog at a point in time.
type RetryQueueDepth struct {
	// Total is the number of records currently in the retrying state.
	Total int64

	// Due is how many of those have next_retry_at at or before now.
	Due int64
}

// DeliveryRepository persists per-post delivery state. Get returns (nil, nil)
// when no record exists for the post. Every mutation is a single atomic
// statement keyed by post id; the unique index on post_id enforces the
// one-record-per-post invariant.
type DeliveryRepository interface {
	Get(ctx context.Context, postID int64) (*entity.DeliveryRecord, error)

	// CreateIfAbsent inserts a pending record for the post unless one already
	// exists. It returns the live record and whether this call created it.
	CreateIfAbsent(ctx context.Context, postID int64, maxAttempts int) (*entity.DeliveryRecord, bool, error)

	// UpdateResult overwrites the record's mutable fields (status, attempts,
	// error fields, external ids, posted_at, next_retry_at) in one statement.
	UpdateResult(ctx context.Context, rec *entity.DeliveryRecord) error

	// ListDueRetries returns up to limit records with status retrying and
	// next_retry_at <= now, oldest due first.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*entity.DeliveryRecord, error)

	// CountByStatusSince counts records per status updated within the window
	// starting at since.
	CountByStatusSince(ctx context.Context, since time.Time) (map[entity.DeliveryStatus]int64, error)

	// CountRetryQueue reports the retry backlog relative to now.
	CountRetryQueue(ctx context.Context, now time.Time) (RetryQueueDepth, error)

	// DeleteTerminalBefore deletes records in the given terminal status whose
	// updated_at is older than cutoff. Pending and retrying records are never
	// candidates.
	DeleteTerminalBefore(ctx context.Context, status entity.DeliveryStatus, cutoff time.Time) (int64, error)
}

// PostRepository is the read-only slice of the content service the pipeline
// depends on. The content model itself is owned elsewhere.
type PostRepository interface {
	// Get returns (nil, nil) when the post does not exist.
	Get(ctx context.Context, id int64) (*entity.Post, error)
}
