package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"feedbrief/internal/domain"
	"feedbrief/internal/feed"
	"feedbrief/internal/summarizer"

	"golang.org/x/time/rate"
)

const (
	defaultBatchSize   = 50
	defaultMaxParallel = 4
	defaultMaxFailures = 3
	maxDeliveryEntries = 500
	persistTimeout     = 30 * time.Second

	summaryCacheTTL = 24*time.Hour + 10*time.Minute

	// FallbackProvider is recorded for summaries built without a backend.
	FallbackProvider = "fallback"
)

var ErrPassInProgress = errors.New("digest pass already in progress")

type Store interface {
	GetFeeds(ctx context.Context) ([]domain.StoredFeed, error)
	UpdateFeedTitle(ctx context.Context, feedID int64, title string) error
	InsertItems(ctx context.Context, items []domain.Item) (int, error)
	GetPendingItems(ctx context.Context, limit int, maxFailures int) ([]domain.Item, error)
	SaveSummary(ctx context.Context, itemID int64, summary string, provider string, at time.Time) error
	RecordFailure(ctx context.Context, itemID int64, reason string) error
	GetUndeliveredSummaries(ctx context.Context, limit int) ([]domain.DigestEntry, error)
	MarkDelivered(ctx context.Context, itemIDs []int64, at time.Time) error
}

type Fetcher interface {
	FetchFeeds(ctx context.Context, feeds []domain.StoredFeed) ([]feed.Result, error)
}

type Notifier interface {
	SendDigest(ctx context.Context, entries []domain.DigestEntry) error
}

type Config struct {
	// Provider is stored next to every summary produced by the summarizer.
	Provider          string
	BatchSize         int
	MaxParallel       int
	MaxFailures       int
	RequestsPerMinute int
}

type Runner struct {
	store      Store
	fetcher    Fetcher
	summarizer summarizer.Summarizer
	notifier   Notifier
	limiter    *rate.Limiter
	cache      *summaryCache
	cfg        Config
	now        func() time.Time
	running    sync.Mutex
	log        *slog.Logger
}

// New builds a Runner. A nil summarizer makes every summary a fallback built
// from the item text; a nil notifier leaves summaries undelivered.
func New(
	store Store,
	fetcher Fetcher,
	s summarizer.Summarizer,
	notifier Notifier,
	cfg Config,
	log *slog.Logger,
) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Runner{
		store:      store,
		fetcher:    fetcher,
		summarizer: s,
		notifier:   notifier,
		limiter:    limiter,
		cache:      newSummaryCache(summaryCacheMaxEntries),
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// Run performs one digest pass. Failures of single feeds or items are
// logged and counted; only storage and delivery errors are returned.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if !r.running.TryLock() {
		return Report{}, ErrPassInProgress
	}
	defer r.running.Unlock()

	start := r.now()
	var report Report

	if err := r.refreshFeeds(ctx, &report); err != nil {
		return report, err
	}

	pending, err := r.store.GetPendingItems(ctx, r.cfg.BatchSize, r.cfg.MaxFailures)
	if err != nil {
		return report, fmt.Errorf("get pending items: %w", err)
	}
	report.Pending = len(pending)

	outcomes := r.summarizeItems(ctx, pending)

	// Summaries already paid for are saved even if the pass deadline has passed.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var errs []error
	for i, out := range outcomes {
		if persistErr := r.persist(persistCtx, pending[i], out, &report); persistErr != nil {
			errs = append(errs, persistErr)
		}
	}

	if deliverErr := r.deliver(ctx, &report); deliverErr != nil {
		errs = append(errs, deliverErr)
	}

	report.Elapsed = r.now().Sub(start)

	r.log.InfoContext(ctx, "Digest pass is finished", "report", report)

	return report, errors.Join(errs...)
}

func (r *Runner) refreshFeeds(ctx context.Context, report *Report) error {
	feeds, err := r.store.GetFeeds(ctx)
	if err != nil {
		return fmt.Errorf("get feeds: %w", err)
	}

	results, fetchErr := r.fetcher.FetchFeeds(ctx, feeds)
	if fetchErr != nil {
		r.log.WarnContext(ctx, "Failed to fetch some feeds",
			"error", fetchErr,
			"feeds", len(feeds),
			"fetched", len(results))
	}

	report.FeedsFetched = len(results)
	report.FeedErrors = len(feeds) - len(results)

	for _, res := range results {
		if res.Title != "" && res.Title != res.Feed.Title {
			if err = r.store.UpdateFeedTitle(ctx, res.Feed.ID, res.Title); err != nil {
				r.log.WarnContext(ctx, "Failed to update feed title",
					"error", err,
					"feedID", res.Feed.ID,
					"title", res.Title)
			}
		}

		inserted, insertErr := r.store.InsertItems(ctx, res.Items)
		if insertErr != nil {
			return fmt.Errorf("insert items (feed ID = %d): %w", res.Feed.ID, insertErr)
		}

		report.NewItems += inserted
	}

	return nil
}

func (r *Runner) persist(
	ctx context.Context,
	item domain.Item,
	out outcome,
	report *Report,
) error {
	if out.err != nil {
		// A canceled pass says nothing about the item.
		if errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded) {
			report.Skipped++
			return nil
		}

		report.Failed++

		if err := r.store.RecordFailure(ctx, item.ID, out.err.Error()); err != nil {
			return fmt.Errorf("record failure (item ID = %d): %w", item.ID, err)
		}

		return nil
	}

	switch {
	case out.cached:
		report.CacheHits++
	case out.provider == FallbackProvider:
		report.Fallbacks++
	default:
		report.Summarized++
	}

	if err := r.store.SaveSummary(ctx, item.ID, out.summary, out.provider, r.now()); err != nil {
		return fmt.Errorf("save summary (item ID = %d): %w", item.ID, err)
	}

	return nil
}

func (r *Runner) deliver(ctx context.Context, report *Report) error {
	if r.notifier == nil {
		return nil
	}

	entries, err := r.store.GetUndeliveredSummaries(ctx, maxDeliveryEntries)
	if err != nil {
		return fmt.Errorf("get undelivered summaries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	if err = r.notifier.SendDigest(ctx, entries); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ItemID)
	}

	if err = r.store.MarkDelivered(ctx, ids, r.now()); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}

	report.Delivered = len(entries)

	return nil
}

func normalizeSummary(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
