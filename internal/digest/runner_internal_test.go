package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"feedbrief/internal/domain"
	"feedbrief/internal/feed"
	"feedbrief/internal/summarizer"
)

type memoryStore struct {
	mu        sync.Mutex
	feeds     []domain.StoredFeed
	items     []domain.Item
	summaries map[int64]string
	providers map[int64]string
	failures  map[int64]int
	delivered map[int64]bool
	nextID    int64
}

func newMemoryStore(feeds ...domain.StoredFeed) *memoryStore {
	return &memoryStore{
		feeds:     feeds,
		summaries: make(map[int64]string),
		providers: make(map[int64]string),
		failures:  make(map[int64]int),
		delivered: make(map[int64]bool),
	}
}

func (s *memoryStore) GetFeeds(context.Context) ([]domain.StoredFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.feeds), nil
}

func (s *memoryStore) UpdateFeedTitle(_ context.Context, feedID int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.feeds {
		if s.feeds[i].ID == feedID {
			s.feeds[i].Title = title
		}
	}

	return nil
}

func (s *memoryStore) InsertItems(_ context.Context, items []domain.Item) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, it := range items {
		if slices.ContainsFunc(s.items, func(existing domain.Item) bool { return existing.URL == it.URL }) {
			continue
		}

		s.nextID++
		it.ID = s.nextID
		s.items = append(s.items, it)
		inserted++
	}

	return inserted, nil
}

func (s *memoryStore) GetPendingItems(_ context.Context, limit int, maxFailures int) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []domain.Item
	for _, it := range s.items {
		if _, done := s.summaries[it.ID]; done || s.failures[it.ID] >= maxFailures {
			continue
		}

		pending = append(pending, it)
		if len(pending) == limit {
			break
		}
	}

	return pending, nil
}

func (s *memoryStore) SaveSummary(ctx context.Context, itemID int64, summary string, provider string, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[itemID] = summary
	s.providers[itemID] = provider

	return nil
}

func (s *memoryStore) RecordFailure(ctx context.Context, itemID int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[itemID]++

	return nil
}

func (s *memoryStore) GetUndeliveredSummaries(_ context.Context, limit int) ([]domain.DigestEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []domain.DigestEntry
	for _, it := range s.items {
		summary, ok := s.summaries[it.ID]
		if !ok || s.delivered[it.ID] {
			continue
		}

		entries = append(entries, domain.DigestEntry{
			ItemID:  it.ID,
			Title:   it.Title,
			URL:     it.URL,
			Summary: summary,
			FeedID:  it.FeedID,
		})
		if len(entries) == limit {
			break
		}
	}

	return entries, nil
}

func (s *memoryStore) MarkDelivered(_ context.Context, itemIDs []int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range itemIDs {
		s.delivered[id] = true
	}

	return nil
}

type stubFetcher struct {
	results []feed.Result
	err     error
}

func (f *stubFetcher) FetchFeeds(context.Context, []domain.StoredFeed) ([]feed.Result, error) {
	return f.results, f.err
}

type stubSummarizer struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]error
	// after runs once the result of every call is ready.
	after func()
}

func (s *stubSummarizer) Summarize(_ context.Context, item summarizer.Item) (string, error) {
	s.mu.Lock()
	s.calls++
	err := s.failFor[item.Title]
	s.mu.Unlock()

	if s.after != nil {
		s.after()
	}

	if err != nil {
		return "", err
	}

	return "summary of " + item.Title, nil
}

func (s *stubSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type recordingNotifier struct {
	mu      sync.Mutex
	digests [][]domain.DigestEntry
	err     error
}

func (n *recordingNotifier) SendDigest(_ context.Context, entries []domain.DigestEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}

	n.digests = append(n.digests, slices.Clone(entries))

	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testItems(feedID int64, titles ...string) []domain.Item {
	items := make([]domain.Item, 0, len(titles))
	for _, title := range titles {
		items = append(items, domain.Item{
			FeedID:      feedID,
			URL:         "https://example.com/" + title,
			Title:       title,
			Body:        "body of " + title,
			PublishedAt: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		})
	}

	return items
}

func TestRunSummarizesAndDelivers(t *testing.T) {
	stored := domain.StoredFeed{ID: 1, URL: "https://example.com/rss", Title: "https://example.com/rss"}
	store := newMemoryStore(stored)
	fetcher := &stubFetcher{results: []feed.Result{
		{Feed: stored, Title: "Example", Items: testItems(1, "one", "two", "three")},
	}}
	sum := &stubSummarizer{}
	notifier := &recordingNotifier{}

	runner := New(store, fetcher, sum, notifier, Config{Provider: "openai", MaxParallel: 2}, discardLogger())

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.NewItems != 3 || report.Summarized != 3 || report.Delivered != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if store.feeds[0].Title != "Example" {
		t.Fatalf("expected feed title to be refreshed, got %q", store.feeds[0].Title)
	}

	if len(notifier.digests) != 1 || len(notifier.digests[0]) != 3 {
		t.Fatalf("unexpected digests: %+v", notifier.digests)
	}

	for id, provider := range store.providers {
		if provider != "openai" {
			t.Fatalf("unexpected provider for item %d: %q", id, provider)
		}
	}

	if got := store.summaries[1]; got != "summary of one" {
		t.Fatalf("unexpected summary: %q", got)
	}

	report, err = runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}

	if report.NewItems != 0 || report.Pending != 0 || report.Delivered != 0 {
		t.Fatalf("expected second run to be a no-op, got %+v", report)
	}

	if got := sum.callCount(); got != 3 {
		t.Fatalf("expected 3 summarizer calls, got %d", got)
	}
}

func TestRunRecordsFailuresWithoutAborting(t *testing.T) {
	stored := domain.StoredFeed{ID: 1, URL: "https://example.com/rss", Title: "Example"}
	store := newMemoryStore(stored)
	fetcher := &stubFetcher{results: []feed.Result{
		{Feed: stored, Items: testItems(1, "good", "bad")},
	}}
	sum := &stubSummarizer{failFor: map[string]error{
		"bad": summarizer.ErrRetriesExhausted,
	}}
	notifier := &recordingNotifier{}

	runner := New(store, fetcher, sum, notifier, Config{Provider: "gemini", MaxFailures: 2}, discardLogger())

	for range 3 {
		if _, err := runner.Run(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if store.failures[2] != 2 {
		t.Fatalf("expected failing item to stop after 2 failures, got %d", store.failures[2])
	}

	if got := sum.callCount(); got != 3 {
		t.Fatalf("expected 1 successful and 2 failed calls, got %d", got)
	}

	if len(notifier.digests) != 1 || notifier.digests[0][0].Title != "good" {
		t.Fatalf("unexpected digests: %+v", notifier.digests)
	}
}

func TestRunWithoutSummarizerUsesFallback(t *testing.T) {
	stored := domain.StoredFeed{ID: 1, URL: "https://example.com/rss", Title: "Example"}
	store := newMemoryStore(stored)

	items := testItems(1, "long")
	items[0].Body = strings.Repeat("word ", 100)

	fetcher := &stubFetcher{results: []feed.Result{{Feed: stored, Items: items}}}

	runner := New(store, fetcher, nil, nil, Config{}, discardLogger())

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Fallbacks != 1 || report.Delivered != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	summary := store.summaries[1]
	if !strings.HasSuffix(summary, "...") || len([]rune(summary)) > fallbackSummaryMaxChars+3 {
		t.Fatalf("unexpected fallback summary: %q", summary)
	}

	if store.providers[1] != FallbackProvider {
		t.Fatalf("unexpected provider: %q", store.providers[1])
	}
}

func TestRunUsesCacheForIdenticalContent(t *testing.T) {
	store := newMemoryStore()
	sum := &stubSummarizer{}
	runner := New(store, &stubFetcher{}, sum, nil, Config{Provider: "openai"}, discardLogger())

	item := testItems(1, "same")[0]

	first := runner.summarizeItem(context.Background(), item)
	second := runner.summarizeItem(context.Background(), item)

	if first.err != nil || second.err != nil {
		t.Fatalf("unexpected errors: %v %v", first.err, second.err)
	}

	if !second.cached || second.summary != first.summary {
		t.Fatalf("expected cached summary, got %+v", second)
	}

	if got := sum.callCount(); got != 1 {
		t.Fatalf("expected summarizer to be called once, got %d", got)
	}
}

func TestSummarizeItemsPreservesOrder(t *testing.T) {
	runner := New(newMemoryStore(), &stubFetcher{}, &stubSummarizer{}, nil, Config{MaxParallel: 3}, discardLogger())

	items := testItems(1, "a", "b", "c", "d", "e")
	outcomes := runner.summarizeItems(context.Background(), items)

	for i, out := range outcomes {
		if want := "summary of " + items[i].Title; out.summary != want {
			t.Fatalf("unexpected summary at %d: got %q want %q", i, out.summary, want)
		}
	}
}

func TestRunKeepsEntriesWhenDeliveryFails(t *testing.T) {
	stored := domain.StoredFeed{ID: 1, URL: "https://example.com/rss", Title: "Example"}
	store := newMemoryStore(stored)
	fetcher := &stubFetcher{results: []feed.Result{{Feed: stored, Items: testItems(1, "one")}}}
	notifier := &recordingNotifier{err: errors.New("telegram is down")}

	runner := New(store, fetcher, &stubSummarizer{}, notifier, Config{}, discardLogger())

	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected delivery error")
	}

	if store.delivered[1] {
		t.Fatalf("expected entry to stay undelivered")
	}

	notifier.err = nil

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Delivered != 1 {
		t.Fatalf("expected entry to be delivered on retry, got %+v", report)
	}
}

func TestRunCountsFeedErrors(t *testing.T) {
	feeds := []domain.StoredFeed{
		{ID: 1, URL: "https://a.example/rss", Title: "A"},
		{ID: 2, URL: "https://b.example/rss", Title: "B"},
	}
	fetcher := &stubFetcher{
		results: []feed.Result{{Feed: feeds[0]}},
		err:     errors.New("fetch feed (ID = 2): boom"),
	}

	runner := New(newMemoryStore(feeds...), fetcher, nil, nil, Config{}, discardLogger())

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("feed errors must not fail the pass: %v", err)
	}

	if report.FeedsFetched != 1 || report.FeedErrors != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunRejectsOverlappingPasses(t *testing.T) {
	runner := New(newMemoryStore(), &stubFetcher{}, nil, nil, Config{}, discardLogger())

	runner.running.Lock()
	defer runner.running.Unlock()

	if _, err := runner.Run(context.Background()); !errors.Is(err, ErrPassInProgress) {
		t.Fatalf("expected ErrPassInProgress, got %v", err)
	}
}

func TestRunSkipsCanceledItems(t *testing.T) {
	stored := domain.StoredFeed{ID: 1, URL: "https://example.com/rss", Title: "Example"}
	store := newMemoryStore(stored)
	fetcher := &stubFetcher{results: []feed.Result{{Feed: stored, Items: testItems(1, "one")}}}
	sum := &stubSummarizer{failFor: map[string]error{"one": context.Canceled}}

	runner := New(store, fetcher, sum, nil, Config{}, discardLogger())

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Skipped != 1 || store.failures[1] != 0 {
		t.Fatalf("expected canceled item to be skipped without a failure, got %+v", report)
	}
}

func TestRunSavesResultsAfterPassDeadline(t *testing.T) {
	stored := domain.StoredFeed{ID: 1, URL: "https://example.com/rss", Title: "Example"}
	store := newMemoryStore(stored)
	fetcher := &stubFetcher{results: []feed.Result{{Feed: stored, Items: testItems(1, "good", "bad")}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sum := &stubSummarizer{
		failFor: map[string]error{"bad": summarizer.ErrRetriesExhausted},
		after:   cancel,
	}

	runner := New(store, fetcher, sum, nil, Config{MaxParallel: 1}, discardLogger())

	report, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Summarized != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if store.summaries[1] != "summary of good" {
		t.Fatalf("expected summary to be saved after the pass was canceled, got %q", store.summaries[1])
	}

	if store.failures[2] != 1 {
		t.Fatalf("expected failure to be recorded after the pass was canceled, got %d", store.failures[2])
	}
}

func TestFallbackSummary(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		title string
		url   string
		want  string
	}{
		{name: "text", text: "  some\n\ntext ", want: "some text"},
		{name: "title", title: "Title", want: "Title"},
		{name: "url", url: "https://example.com/x", want: "https://example.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fallbackSummary(tt.text, tt.title, tt.url); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}
