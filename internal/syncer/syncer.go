package syncer

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonardofuson/tinysync/internal/store"
	"github.com/leonardofuson/tinysync/internal/tiny"
)

// sellerTypeFilter selects seller records from the generic contact listing.
const sellerTypeFilter = "V"

// ProviderClient is the slice of the Tiny client the orchestrator consumes.
type ProviderClient interface {
	CategoryTree(ctx context.Context) ([]map[string]any, error)
	ListProducts(ctx context.Context, page int, changedSince string) (tiny.Page, error)
	GetProduct(ctx context.Context, id int64) (map[string]any, error)
	ListContacts(ctx context.Context, page int, typeFilter string) (tiny.Page, error)
	ListOrders(ctx context.Context, page int, changedSince string) (tiny.Page, error)
	GetOrder(ctx context.Context, id int64) (map[string]any, error)
}

type ProgressStore interface {
	Read(ctx context.Context, key string) (string, error)
	Write(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
}

type Writer interface {
	ReplaceCategories(ctx context.Context, categories []store.Category) error
	UpsertProduct(ctx context.Context, product store.Product) error
	ReplaceSellers(ctx context.Context, sellers []store.Seller) error
	UpsertOrder(ctx context.Context, order store.Order) error
}

type Counts struct {
	Processed int
	Skipped   int
	Failed    int
}

type Result struct {
	Categories Counts
	Products   Counts
	Sellers    Counts
	Orders     Counts

	// Remaining reports that a backfill hit the per-run page cap; the caller
	// (the external scheduler) should invoke the job again.
	Remaining bool
}

type Options struct {
	MaxPagesPerRun int
	PagePause      time.Duration
	DetailPause    time.Duration
	Logger         zerolog.Logger
	Now            func() time.Time
}

// Syncer drives one bounded invocation: mode decision per entity type,
// pagination, checkpointing and the fixed dependency order categories →
// products → sellers → orders.
type Syncer struct {
	client   ProviderClient
	progress ProgressStore
	writer   Writer

	maxPages    int
	pagePause   time.Duration
	detailPause time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

func New(client ProviderClient, progress ProgressStore, writer Writer, opts Options) *Syncer {
	maxPages := opts.MaxPagesPerRun
	if maxPages <= 0 {
		maxPages = 20
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Syncer{
		client:      client,
		progress:    progress,
		writer:      writer,
		maxPages:    maxPages,
		pagePause:   opts.PagePause,
		detailPause: opts.DetailPause,
		log:         opts.Logger,
		now:         now,
	}
}

// Run executes one sync pass. Categories and sellers are fully refreshed
// every run; products and orders run in backfill or incremental mode depending
// on their checkpoint state. If the products backfill is still incomplete the
// run stops before sellers and orders, since order rows reference both.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	var res Result

	if err := s.syncCategories(ctx, &res.Categories); err != nil {
		if isFatal(ctx, err) {
			return res, err
		}
		// Products soften unknown category references to NULL, so a failed
		// category refresh degrades the run instead of ending it.
		s.log.Error().Err(err).Msg("category refresh failed, continuing")
		res.Categories.Failed++
	}

	remaining, err := s.syncPaged(ctx, s.productsEntity(), &res.Products)
	if err != nil {
		return res, err
	}
	if remaining {
		res.Remaining = true
		s.log.Info().Msg("products backfill incomplete, deferring sellers and orders to the next run")
		return res, nil
	}

	if err := s.syncSellers(ctx, &res.Sellers); err != nil {
		if isFatal(ctx, err) {
			return res, err
		}
		s.log.Error().Err(err).Msg("seller refresh failed, continuing")
		res.Sellers.Failed++
	}

	remaining, err = s.syncPaged(ctx, s.ordersEntity(), &res.Orders)
	if err != nil {
		return res, err
	}
	res.Remaining = remaining
	return res, nil
}

func (s *Syncer) syncCategories(ctx context.Context, counts *Counts) error {
	nodes, err := s.client.CategoryTree(ctx)
	if err != nil {
		return err
	}
	rows := categoryRows(nodes)
	if len(rows) == 0 {
		s.log.Debug().Msg("category tree is empty")
		return nil
	}
	if err := s.writer.ReplaceCategories(ctx, rows); err != nil {
		return err
	}
	counts.Processed = len(rows)
	s.log.Info().Int("categories", len(rows)).Msg("category tree refreshed")
	return nil
}

func (s *Syncer) syncSellers(ctx context.Context, counts *Counts) error {
	var sellers []store.Seller
	for page := 1; ; page++ {
		pg, err := s.client.ListContacts(ctx, page, sellerTypeFilter)
		if err != nil {
			return err
		}
		for _, raw := range pg.Records {
			seller, ok := normalizeSeller(raw)
			if !ok {
				counts.Skipped++
				s.log.Warn().Interface("id", raw["id"]).Msg("seller record incomplete, skipped")
				continue
			}
			sellers = append(sellers, seller)
		}
		if !pg.HasMore {
			break
		}
		if err := sleepContext(ctx, s.pagePause); err != nil {
			return err
		}
	}
	if err := s.writer.ReplaceSellers(ctx, sellers); err != nil {
		return err
	}
	counts.Processed = len(sellers)
	s.log.Info().Int("sellers", len(sellers)).Msg("sellers refreshed")
	return nil
}

// pagedEntity abstracts the products and orders pipelines, which share the
// backfill/incremental state machine and differ only in checkpoint keys and
// record handling.
type pagedEntity struct {
	name    string
	pageKey string
	tsKey   string
	list    func(ctx context.Context, page int, changedSince string) (tiny.Page, error)
	process func(ctx context.Context, raw map[string]any) (bool, error)
}

func (s *Syncer) productsEntity() pagedEntity {
	return pagedEntity{
		name:    "products",
		pageKey: store.KeyProductsPage,
		tsKey:   store.KeyProductsLastSync,
		list:    s.client.ListProducts,
		process: s.processProduct,
	}
}

func (s *Syncer) ordersEntity() pagedEntity {
	return pagedEntity{
		name:    "orders",
		pageKey: store.KeyOrdersPage,
		tsKey:   store.KeyOrdersLastSync,
		list:    s.client.ListOrders,
		process: s.processOrder,
	}
}

// syncPaged picks the mode: no last-sync timestamp means backfill (resuming
// from the checkpointed page), a timestamp means incremental. The transition
// is one-way; clearing the timestamp by hand is the only way back.
func (s *Syncer) syncPaged(ctx context.Context, e pagedEntity, counts *Counts) (bool, error) {
	since, err := s.progress.Read(ctx, e.tsKey)
	if err != nil {
		return false, err
	}
	if since == "" {
		return s.backfill(ctx, e, counts)
	}
	return false, s.incremental(ctx, e, since, counts)
}

func (s *Syncer) backfill(ctx context.Context, e pagedEntity, counts *Counts) (bool, error) {
	page := 1
	if v, err := s.progress.Read(ctx, e.pageKey); err != nil {
		return false, err
	} else if v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
			page = n
		}
	}
	s.log.Info().Str("entity", e.name).Int("page", page).Msg("backfill starting")

	for pagesDone := 0; pagesDone < s.maxPages; pagesDone++ {
		pg, err := s.listCheckpointed(ctx, e, page, "")
		if err != nil {
			return false, err
		}
		if err := s.processPage(ctx, e, pg.Records, page, counts); err != nil {
			return false, err
		}
		if !pg.HasMore {
			if err := s.progress.Clear(ctx, e.pageKey); err != nil {
				return false, err
			}
			stamp := s.now().Format(tiny.ChangedSinceLayout)
			if err := s.progress.Write(ctx, e.tsKey, stamp); err != nil {
				return false, err
			}
			s.log.Info().Str("entity", e.name).Str("last_sync", stamp).Msg("backfill complete, switching to incremental")
			return false, nil
		}
		page++
		if err := s.progress.Write(ctx, e.pageKey, strconv.Itoa(page)); err != nil {
			return false, err
		}
		if err := sleepContext(ctx, s.pagePause); err != nil {
			return false, err
		}
	}
	s.log.Info().Str("entity", e.name).Int("next_page", page).Msg("page cap reached, backfill resumes next run")
	return true, nil
}

func (s *Syncer) incremental(ctx context.Context, e pagedEntity, since string, counts *Counts) error {
	// The new checkpoint is the run start, so records changed while this pass
	// runs land in the next window instead of being lost.
	stamp := s.now().Format(tiny.ChangedSinceLayout)

	for page, pagesDone := 1, 0; ; page, pagesDone = page+1, pagesDone+1 {
		if pagesDone >= s.maxPages {
			s.log.Warn().Str("entity", e.name).Str("since", since).
				Msg("incremental hit page cap, timestamp left unchanged for retry")
			return nil
		}
		pg, err := e.list(ctx, page, since)
		if err != nil {
			return err
		}
		if err := s.processPage(ctx, e, pg.Records, page, counts); err != nil {
			return err
		}
		if !pg.HasMore {
			break
		}
		if err := sleepContext(ctx, s.pagePause); err != nil {
			return err
		}
	}
	if err := s.progress.Write(ctx, e.tsKey, stamp); err != nil {
		return err
	}
	s.log.Info().Str("entity", e.name).Str("since", since).Str("last_sync", stamp).
		Int("processed", counts.Processed).Msg("incremental sync complete")
	return nil
}

// listCheckpointed wraps the listing call so a page-level failure persists the
// current page before surfacing; the next run retries the same page.
func (s *Syncer) listCheckpointed(ctx context.Context, e pagedEntity, page int, changedSince string) (tiny.Page, error) {
	pg, err := e.list(ctx, page, changedSince)
	if err != nil {
		if writeErr := s.progress.Write(ctx, e.pageKey, strconv.Itoa(page)); writeErr != nil {
			s.log.Error().Err(writeErr).Str("entity", e.name).Int("page", page).Msg("failed to checkpoint page")
		}
		return tiny.Page{}, err
	}
	return pg, nil
}

// processPage applies one page of records. Record-level failures are logged
// and counted, never fatal; credential and connection-exhaustion errors abort.
func (s *Syncer) processPage(ctx context.Context, e pagedEntity, records []map[string]any, page int, counts *Counts) error {
	for _, raw := range records {
		processed, err := e.process(ctx, raw)
		if err != nil {
			if isFatal(ctx, err) {
				if writeErr := s.progress.Write(ctx, e.pageKey, strconv.Itoa(page)); writeErr != nil {
					s.log.Error().Err(writeErr).Str("entity", e.name).Int("page", page).Msg("failed to checkpoint page")
				}
				return err
			}
			counts.Failed++
			s.log.Error().Err(err).Str("entity", e.name).Interface("id", raw["id"]).Msg("record failed, continuing")
			continue
		}
		if processed {
			counts.Processed++
		} else {
			counts.Skipped++
		}
	}
	return nil
}

func (s *Syncer) processProduct(ctx context.Context, raw map[string]any) (bool, error) {
	id, ok := asInt64(raw["id"])
	if !ok || id == 0 {
		s.log.Warn().Interface("record", raw["id"]).Msg("product listing row has no id, skipped")
		return false, nil
	}
	detail, err := s.client.GetProduct(ctx, id)
	if pauseErr := sleepContext(ctx, s.detailPause); pauseErr != nil {
		return false, pauseErr
	}
	if err != nil {
		return false, err
	}
	if detail == nil {
		s.log.Debug().Int64("product", id).Msg("product gone upstream, skipped")
		return false, nil
	}
	product, ok := normalizeProduct(detail)
	if !ok {
		s.log.Warn().Int64("product", id).Msg("product record incomplete, skipped")
		return false, nil
	}
	if err := s.writer.UpsertProduct(ctx, product); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Syncer) processOrder(ctx context.Context, raw map[string]any) (bool, error) {
	id, ok := asInt64(raw["id"])
	if !ok || id == 0 {
		s.log.Warn().Interface("record", raw["id"]).Msg("order listing row has no id, skipped")
		return false, nil
	}
	detail, err := s.client.GetOrder(ctx, id)
	if pauseErr := sleepContext(ctx, s.detailPause); pauseErr != nil {
		return false, pauseErr
	}
	if err != nil {
		return false, err
	}
	if detail == nil {
		s.log.Debug().Int64("order", id).Msg("order gone upstream, skipped")
		return false, nil
	}
	order, ok := normalizeOrder(detail)
	if !ok {
		s.log.Warn().Int64("order", id).Msg("order record incomplete, skipped")
		return false, nil
	}
	if err := s.writer.UpsertOrder(ctx, order); err != nil {
		return false, err
	}
	return true, nil
}

// isFatal separates run-aborting failures (invalid credential, destination
// unreachable, cancellation) from record- and page-level ones.
func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, tiny.ErrInvalidCredential) ||
		errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
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
