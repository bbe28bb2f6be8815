package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// ErrUnavailable marks reconnect exhaustion; the run cannot continue.
var ErrUnavailable = errors.New("database unavailable")

// DB owns the single Postgres handle shared by the whole run. The job is
// sequential, so one connection is enough; Ensure re-establishes it when a
// ping fails, with a bounded number of attempts and a fixed delay.
type DB struct {
	dsn         string
	maxAttempts int
	retryDelay  time.Duration
	log         zerolog.Logger

	db *sql.DB
}

type DBOptions struct {
	DSN         string
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      zerolog.Logger
}

func Open(ctx context.Context, opts DBOptions) (*DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 3 * time.Second
	}
	d := &DB{
		dsn:         opts.DSN,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		log:         opts.Logger,
	}
	if err := d.reconnect(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Ensure returns a live handle, reconnecting transparently if the current one
// is broken or closed. Exhausting reconnect attempts is fatal for the run.
func (d *DB) Ensure(ctx context.Context) (*sql.DB, error) {
	if d.db != nil {
		if err := d.db.PingContext(ctx); err == nil {
			return d.db, nil
		}
		d.log.Warn().Msg("database connection lost, reconnecting")
		_ = d.db.Close()
		d.db = nil
	}
	if err := d.reconnect(ctx); err != nil {
		return nil, err
	}
	return d.db, nil
}

func (d *DB) reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		db, err := sql.Open("postgres", d.dsn)
		if err == nil {
			db.SetMaxOpenConns(1)
			if err = db.PingContext(ctx); err == nil {
				d.db = db
				return nil
			}
			_ = db.Close()
		}
		lastErr = err
		d.log.Warn().Err(err).Int("attempt", attempt).Int("max", d.maxAttempts).Msg("database connect failed")
		if attempt < d.maxAttempts {
			if waitErr := sleepContext(ctx, d.retryDelay); waitErr != nil {
				return waitErr
			}
		}
	}
	return fmt.Errorf("store: %w after %d attempts: %v", ErrUnavailable, d.maxAttempts, lastErr)
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// begin wraps Ensure + BeginTx so every unit of work tolerates a connection
// that died since the previous one.
func (d *DB) begin(ctx context.Context) (*sql.Tx, error) {
	db, err := d.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return db.BeginTx(ctx, nil)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
