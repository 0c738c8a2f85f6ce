package db

import (
	"database/sql"
)

// MigrateUp creates the delivery tracking schema. All statements are
// idempotent so the worker can run migrations on every startup.
//
// The posts table is owned by the blog application; it is created here only
// so local development and tests work against an empty database. Production
// schemas already have it.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS deliveries (
    id                SERIAL PRIMARY KEY,
    post_id           BIGINT NOT NULL UNIQUE,
    status            VARCHAR(20) NOT NULL DEFAULT 'pending',
    attempt_count     INTEGER NOT NULL DEFAULT 0,
    max_attempts      INTEGER NOT NULL DEFAULT 3,
    error_message     TEXT,
    error_code        VARCHAR(20),
    external_post_id  TEXT,
    external_post_url TEXT,
    posted_at         TIMESTAMPTZ,
    next_retry_at     TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id           BIGSERIAL PRIMARY KEY,
    title        TEXT NOT NULL,
    slug         TEXT NOT NULL UNIQUE,
    excerpt      TEXT,
    url          TEXT NOT NULL,
    published    BOOLEAN NOT NULL DEFAULT FALSE,
    published_at TIMESTAMPTZ
)`); err != nil {
		return err
	}

	indexes := []string{
		// Sweeper scan: WHERE status = 'retrying' AND next_retry_at <= now()
		`CREATE INDEX IF NOT EXISTS idx_deliveries_retry_due ON deliveries(next_retry_at) WHERE status = 'retrying'`,
		// Monitor windows: WHERE updated_at >= $1 GROUP BY status
		`CREATE INDEX IF NOT EXISTS idx_deliveries_status_updated ON deliveries(status, updated_at)`,
		// Janitor purge: WHERE status = $1 AND updated_at < $2
		`CREATE INDEX IF NOT EXISTS idx_deliveries_updated_at ON deliveries(updated_at)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	// PostgreSQL lacks ADD CONSTRAINT IF NOT EXISTS; errors from a
	// pre-existing constraint are ignored.
	_, _ = db.Exec(`
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_constraint
        WHERE conname = 'chk_delivery_status'
    ) THEN
        ALTER TABLE deliveries ADD CONSTRAINT chk_delivery_status
        CHECK (status IN ('pending', 'retrying', 'success', 'failed'));
    END IF;
END $$;
`)

	_, _ = db.Exec(`
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_constraint
        WHERE conname = 'chk_delivery_attempts'
    ) THEN
        ALTER TABLE deliveries ADD CONSTRAINT chk_delivery_attempts
        CHECK (attempt_count >= 0 AND attempt_count <= max_attempts);
    END IF;
END $$;
`)

	return nil
}

// MigrateDown drops the delivery tracking schema.
// Use with caution: this deletes all delivery history.
//
// The posts table is left alone; it belongs to the blog application.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP INDEX IF EXISTS idx_deliveries_retry_due`,
		`DROP INDEX IF EXISTS idx_deliveries_status_updated`,
		`DROP INDEX IF EXISTS idx_deliveries_updated_at`,
		`DROP TABLE IF EXISTS deliveries CASCADE`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
