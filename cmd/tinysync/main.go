package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/leonardofuson/tinysync/internal/config"
	"github.com/leonardofuson/tinysync/internal/logging"
	"github.com/leonardofuson/tinysync/internal/store"
	"github.com/leonardofuson/tinysync/internal/syncer"
	"github.com/leonardofuson/tinysync/internal/tiny"
)

// tinysync is a one-shot batch job: each invocation resumes from the progress
// checkpoints in the destination database, does a bounded amount of work and
// exits. Run it as a singleton scheduled task; nothing here guards against two
// concurrent instances. Exit code 0 covers both "fully complete" and "more
// work remains"; only unrecoverable failures exit non-zero.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("info")
		fallback.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(ctx, store.DBOptions{
		DSN:        cfg.DB.DSN(),
		RetryDelay: cfg.Sync.RetryDelay,
		Logger:     log,
	})
	if err != nil {
		log.Error().Err(err).Msg("database unreachable")
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("schema migration failed")
		os.Exit(1)
	}

	client := tiny.NewClient(tiny.Options{
		BaseURL:    cfg.Tiny.BaseURL,
		Token:      cfg.Tiny.Token,
		HTTPClient: &http.Client{Timeout: cfg.Sync.HTTPTimeout},
		MaxRetries: cfg.Sync.MaxRetries,
		RetryDelay: cfg.Sync.RetryDelay,
	})
	s := syncer.New(client, store.NewProgressStore(db), store.NewWriter(db), syncer.Options{
		MaxPagesPerRun: cfg.Sync.MaxPagesPerRun,
		PagePause:      cfg.Sync.PagePause,
		DetailPause:    cfg.Sync.DetailPause,
		Logger:         log,
	})

	result, err := s.Run(ctx)
	logResult(log, result)
	if err != nil {
		if isUnrecoverable(err) {
			log.Error().Err(err).Msg("sync aborted")
			os.Exit(1)
		}
		// Resumable failure: the checkpoint was saved, the next scheduled
		// invocation retries from it.
		log.Error().Err(err).Msg("sync run failed, will resume next run")
		return
	}
	if result.Remaining {
		log.Info().Msg("run complete, more work remains")
		return
	}
	log.Info().Msg("run complete")
}

func isUnrecoverable(err error) bool {
	return errors.Is(err, tiny.ErrInvalidCredential) || errors.Is(err, store.ErrUnavailable)
}

func logResult(log zerolog.Logger, result syncer.Result) {
	log.Info().
		Int("categories", result.Categories.Processed).
		Int("products", result.Products.Processed).
		Int("products_skipped", result.Products.Skipped).
		Int("products_failed", result.Products.Failed).
		Int("sellers", result.Sellers.Processed).
		Int("orders", result.Orders.Processed).
		Int("orders_skipped", result.Orders.Skipped).
		Int("orders_failed", result.Orders.Failed).
		Bool("remaining", result.Remaining).
		Msg("sync totals")
}
