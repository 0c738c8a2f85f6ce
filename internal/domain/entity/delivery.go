package entity

import (
	"fmt"
	"time"
)

// DeliveryStatus is the lifecycle state of a syndication delivery.
type DeliveryStatus string

const (
	// DeliveryPending means a delivery attempt has been scheduled but no
	// attempt has completed yet.
	DeliveryPending DeliveryStatus = "pending"

	// DeliveryRetrying means the last attempt failed with a retryable error
	// and another attempt is due at NextRetryAt.
	DeliveryRetrying DeliveryStatus = "retrying"

	// DeliverySuccess means the post was accepted by the platform.
	DeliverySuccess DeliveryStatus = "success"

	// DeliveryFailed means the last attempt failed. The record is terminal
	// once AttemptCount has reached MaxAttempts or the error was permanent.
	DeliveryFailed DeliveryStatus = "failed"
)

// DefaultMaxAttempts is the delivery attempt budget applied to new records.
const DefaultMaxAttempts = 3

// DeliveryRecord tracks one post's syndication lifecycle against the social
// platform. There is at most one record per post id; the record is created
// lazily on the first eligible attempt and mutated only by the posting worker.
type DeliveryRecord struct {
	ID           int64
	PostID       int64
	Status       DeliveryStatus
	AttemptCount int
	MaxAttempts  int

	// ErrorMessage and ErrorCode describe the most recent failure. Both are
	// empty while Status is success.
	ErrorMessage string
	ErrorCode    string

	// ExternalPostID and ExternalPostURL identify the post on the platform.
	// Set only when Status is success.
	ExternalPostID  string
	ExternalPostURL string

	// PostedAt is the time the platform accepted the post (success only).
	PostedAt *time.Time

	// NextRetryAt is the earliest time the sweeper may re-enqueue this
	// record. Non-nil exactly when Status is retrying.
	NextRetryAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDeliveryRecord returns a pending record for the given post with the
// default attempt budget.
func NewDeliveryRecord(postID int64) *DeliveryRecord {
	now := time.Now()
	return &DeliveryRecord{
		PostID:      postID,
		Status:      DeliveryPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Terminal reports whether the record has reached a state the pipeline will
// not act on again (success, or failed with the attempt budget spent).
func (r *DeliveryRecord) Terminal() bool {
	switch r.Status {
	case DeliverySuccess:
		return true
	case DeliveryFailed:
		return r.AttemptCount >= r.MaxAttempts
	default:
		return false
	}
}

// InFlight reports whether an attempt is already running or scheduled.
func (r *DeliveryRecord) InFlight() bool {
	return r.Status == DeliveryPending || r.Status == DeliveryRetrying
}

// RetryEligible reports whether the trigger may enqueue another attempt for
// a failed record.
func (r *DeliveryRecord) RetryEligible() bool {
	return r.Status == DeliveryFailed && r.AttemptCount < r.MaxAttempts
}

// AttemptsRemaining returns how many attempts are left in the budget.
func (r *DeliveryRecord) AttemptsRemaining() int {
	remaining := r.MaxAttempts - r.AttemptCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Validate checks the record's internal invariants:
//   - status is one of the four known states
//   - attempt_count never exceeds max_attempts
//   - next_retry_at is set exactly when status is retrying
//   - external post id is set exactly when status is success
func (r *DeliveryRecord) Validate() error {
	switch r.Status {
	case DeliveryPending, DeliveryRetrying, DeliverySuccess, DeliveryFailed:
	default:
		return fmt.Errorf("%w: unknown delivery status %q", ErrValidationFailed, r.Status)
	}

	if r.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max_attempts must be positive", ErrValidationFailed)
	}
	if r.AttemptCount < 0 || r.AttemptCount > r.MaxAttempts {
		return fmt.Errorf("%w: attempt_count %d outside [0, %d]",
			ErrValidationFailed, r.AttemptCount, r.MaxAttempts)
	}

	if (r.NextRetryAt != nil) != (r.Status == DeliveryRetrying) {
		return fmt.Errorf("%w: next_retry_at must be set iff status is retrying",
			ErrValidationFailed)
	}

	if (r.ExternalPostID != "") != (r.Status == DeliverySuccess) {
		return fmt.Errorf("%w: external_post_id must be set iff status is success",
			ErrValidationFailed)
	}
	if r.Status == DeliverySuccess && r.PostedAt == nil {
		return fmt.Errorf("%w: posted_at required on success", ErrValidationFailed)
	}
	if r.Status == DeliverySuccess && (r.ErrorMessage != "" || r.ErrorCode != "") {
		return fmt.Errorf("%w: error fields must be empty on success", ErrValidationFailed)
	}

	return nil
}
