package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"postbridge/internal/domain/entity"
	"postbridge/internal/repository"
)

const deliveryColumns = `id, post_id, status, attempt_count, max_attempts,
       error_message, error_code, external_post_id, external_post_url,
       posted_at, next_retry_at, created_at, updated_at`

type DeliveryRepo struct {
	db *sql.DB
}

func NewDeliveryRepo(db *sql.DB) repository.DeliveryRepository {
	return &DeliveryRepo{db: db}
}

func scanDelivery(s interface{ Scan(...any) error }) (*entity.DeliveryRecord, error) {
	// The four text columns are NULL until the first attempt writes them, so
	// they go through NullString and come out as empty strings.
	var rec entity.DeliveryRecord
	var errMsg, errCode, extID, extURL sql.NullString
	err := s.Scan(&rec.ID, &rec.PostID, &rec.Status, &rec.AttemptCount, &rec.MaxAttempts,
		&errMsg, &errCode, &extID, &extURL,
		&rec.PostedAt, &rec.NextRetryAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ErrorMessage = errMsg.String
	rec.ErrorCode = errCode.String
	rec.ExternalPostID = extID.String
	rec.ExternalPostURL = extURL.String
	return &rec, nil
}

func (repo *DeliveryRepo) Get(ctx context.Context, postID int64) (*entity.DeliveryRecord, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM deliveries
WHERE post_id = $1
LIMIT 1`, deliveryColumns)

	rec, err := scanDelivery(repo.db.QueryRowContext(ctx, query, postID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return rec, nil
}

func (repo *DeliveryRepo) CreateIfAbsent(ctx context.Context, postID int64, maxAttempts int) (*entity.DeliveryRecord, bool, error) {
	// ON CONFLICT DO NOTHING keeps the one-record-per-post invariant under
	// concurrent triggers; the losing insert returns no row and we re-read.
	insert := fmt.Sprintf(`
INSERT INTO deliveries (post_id, status, attempt_count, max_attempts, created_at, updated_at)
VALUES ($1, $2, 0, $3, now(), now())
ON CONFLICT (post_id) DO NOTHING
RETURNING %s`, deliveryColumns)

	rec, err := scanDelivery(repo.db.QueryRowContext(ctx, insert, postID, entity.DeliveryPending, maxAttempts))
	if err == nil {
		return rec, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("CreateIfAbsent: %w", err)
	}

	existing, err := repo.Get(ctx, postID)
	if err != nil {
		return nil, false, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	if existing == nil {
		return nil, false, fmt.Errorf("CreateIfAbsent: record vanished for post %d", postID)
	}
	return existing, false, nil
}

func (repo *DeliveryRepo) UpdateResult(ctx context.Context, rec *entity.DeliveryRecord) error {
	const query = `
UPDATE deliveries SET
       status            = $1,
       attempt_count     = $2,
       error_message     = $3,
       error_code        = $4,
       external_post_id  = $5,
       external_post_url = $6,
       posted_at         = $7,
       next_retry_at     = $8,
       updated_at        = now()
WHERE post_id = $9`
	res, err := repo.db.ExecContext(ctx, query,
		rec.Status, rec.AttemptCount, rec.ErrorMessage, rec.ErrorCode,
		rec.ExternalPostID, rec.ExternalPostURL, rec.PostedAt, rec.NextRetryAt,
		rec.PostID,
	)
	if err != nil {
		return fmt.Errorf("UpdateResult: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateResult: no rows affected")
	}
	return nil
}

func (repo *DeliveryRepo) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*entity.DeliveryRecord, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM deliveries
WHERE status = $1
  AND next_retry_at <= $2
ORDER BY next_retry_at ASC
LIMIT $3`, deliveryColumns)

	rows, err := repo.db.QueryContext(ctx, query, entity.DeliveryRetrying, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ListDueRetries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*entity.DeliveryRecord, 0, limit)
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("ListDueRetries: Scan: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (repo *DeliveryRepo) CountByStatusSince(ctx context.Context, since time.Time) (map[entity.DeliveryStatus]int64, error) {
	const query = `
SELECT status, COUNT(*)
FROM deliveries
WHERE updated_at >= $1
GROUP BY status`

	rows, err := repo.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("CountByStatusSince: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[entity.DeliveryStatus]int64)
	for rows.Next() {
		var status entity.DeliveryStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("CountByStatusSince: Scan: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (repo *DeliveryRepo) CountRetryQueue(ctx context.Context, now time.Time) (repository.RetryQueueDepth, error) {
	const query = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE next_retry_at <= $2)
FROM deliveries
WHERE status = $1`

	var depth repository.RetryQueueDepth
	err := repo.db.QueryRowContext(ctx, query, entity.DeliveryRetrying, now).
		Scan(&depth.Total, &depth.Due)
	if err != nil {
		return repository.RetryQueueDepth{}, fmt.Errorf("CountRetryQueue: %w", err)
	}
	return depth, nil
}

func (repo *DeliveryRepo) DeleteTerminalBefore(ctx context.Context, status entity.DeliveryStatus, cutoff time.Time) (int64, error) {
	if status != entity.DeliverySuccess && status != entity.DeliveryFailed {
		return 0, fmt.Errorf("DeleteTerminalBefore: non-terminal status %q", status)
	}

	const query = `
DELETE FROM deliveries
WHERE status = $1
  AND updated_at < $2`
	res, err := repo.db.ExecContext(ctx, query, status, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteTerminalBefore: %w", err)
	}
	return n, nil
}
