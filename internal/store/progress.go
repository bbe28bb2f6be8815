package store

import (
	"context"
	"database/sql"
	"errors"
)

// Progress checkpoint keys. Per entity type there is at most one page cursor
// and one last-sync timestamp: a timestamp present means backfill is complete
// and incremental mode applies; a page cursor alone means backfill resumes at
// that page.
const (
	KeyProductsPage     = "products.page"
	KeyProductsLastSync = "products.last_sync"
	KeyOrdersPage       = "orders.page"
	KeyOrdersLastSync   = "orders.last_sync"
)

// ProgressStore persists resumable sync state in sync_progress. It shares the
// run's DB handle, so reads and writes survive a reconnect.
type ProgressStore struct {
	db *DB
}

func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// Read returns the stored value, or "" when the key is absent.
func (p *ProgressStore) Read(ctx context.Context, key string) (string, error) {
	db, err := p.db.Ensure(ctx)
	if err != nil {
		return "", err
	}
	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM sync_progress WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (p *ProgressStore) Write(ctx context.Context, key, value string) error {
	db, err := p.db.Ensure(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sync_progress (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	return err
}

func (p *ProgressStore) Clear(ctx context.Context, key string) error {
	db, err := p.db.Ensure(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM sync_progress WHERE key = $1`, key)
	return err
}
