package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"feedbrief/internal/domain"

	"github.com/mmcdole/gofeed"
)

const (
	defaultClientTimeout                 = 20 * time.Second
	fetchFeedsMaxConcurrencyGrowthFactor = 10

	freshnessWindow      = 24 * time.Hour
	freshnessGracePeriod = 10 * time.Minute
)

// Result is the outcome of refreshing one stored feed.
type Result struct {
	Feed  domain.StoredFeed
	Title string
	Items []domain.Item
}

type Fetcher struct {
	libParser *gofeed.Parser
	client    *http.Client
	now       func() time.Time
	log       *slog.Logger
}

func NewFetcher(client *http.Client, log *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}

	libParser := gofeed.NewParser()
	libParser.Client = client
	libParser.UserAgent = userAgent

	return &Fetcher{
		libParser: libParser,
		client:    client,
		now:       time.Now,
		log:       log,
	}
}

// FetchFeed downloads the feed and returns its items published inside the
// freshness window together with the title the source currently reports.
func (f *Fetcher) FetchFeed(
	ctx context.Context,
	feed domain.StoredFeed,
) ([]domain.Item, string, error) {
	feedURL := strings.TrimSpace(feed.URL)
	now := f.now().UTC()
	cutoff := now.Add(-freshnessWindow - freshnessGracePeriod)

	if ok, slug := isTelegramChannelURL(feedURL); ok {
		return f.fetchTelegramChannelFeed(ctx, feed.ID, slug, now, cutoff)
	}

	parsed, err := f.libParser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, "", fmt.Errorf("parse feed (URL = %s): %w", feedURL, err)
	}

	var items []domain.Item
	for _, it := range parsed.Items {
		item, ok := f.convertItem(ctx, feed.ID, feedURL, it, now, cutoff)
		if !ok {
			continue
		}

		items = append(items, item)
	}

	return items, strings.TrimSpace(parsed.Title), nil
}

// FetchFeeds refreshes feeds concurrently. Results keep the input order;
// feeds that failed are left out and their errors are joined.
func (f *Fetcher) FetchFeeds(
	ctx context.Context,
	feeds []domain.StoredFeed,
) ([]Result, error) {
	if len(feeds) == 0 {
		return nil, nil
	}

	concurrency := min(runtime.NumCPU()*fetchFeedsMaxConcurrencyGrowthFactor, len(feeds))
	semCh := make(chan struct{}, concurrency)

	results := make([]Result, len(feeds))
	errs := make([]error, len(feeds))

	var wg sync.WaitGroup
	for i, feed := range feeds {
		semCh <- struct{}{}

		wg.Go(func() {
			defer func() { <-semCh }()

			items, title, err := f.FetchFeed(ctx, feed)
			if err != nil {
				errs[i] = fmt.Errorf("fetch feed (ID = %d): %w", feed.ID, err)
				return
			}

			results[i] = Result{Feed: feed, Title: title, Items: items}
		})
	}
	wg.Wait()

	fetched := results[:0]
	for i := range results {
		if errs[i] == nil {
			fetched = append(fetched, results[i])
		}
	}

	return fetched, errors.Join(errs...)
}

// ValidateFeed checks that rawURL points at something we can read and
// returns it in canonical form with its title.
func (f *Fetcher) ValidateFeed(
	ctx context.Context,
	rawURL string,
) (domain.Feed, error) {
	feedURL := strings.TrimSpace(rawURL)
	if feedURL == "" {
		return domain.Feed{}, errors.New("feed URL is empty")
	}

	if _, err := url.Parse(feedURL); err != nil {
		return domain.Feed{}, fmt.Errorf("parse URL: %w", err)
	}

	if ok, slug := isTelegramChannelURL(feedURL); ok {
		canonicalURL := TelegramChannelCanonicalURL(slug)

		_, title, err := f.fetchTelegramChannel(ctx, slug)
		if err != nil {
			return domain.Feed{}, fmt.Errorf("fetch Telegram channel: %w", err)
		}

		if title == "" {
			f.log.WarnContext(ctx, "Empty Telegram channel title",
				"canonicalURL", canonicalURL,
				"slug", slug)

			title = canonicalURL
		}

		return domain.Feed{URL: canonicalURL, Title: title}, nil
	}

	parsed, err := f.libParser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("parse feed (URL = %s): %w", feedURL, err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		f.log.WarnContext(ctx, "Empty feed title",
			"feedURL", feedURL,
			"fallbackTitle", feedURL)

		title = feedURL
	}

	return domain.Feed{URL: feedURL, Title: title}, nil
}

// FindValidFeeds validates every feed reference found in text. Invalid ones
// are reported in the joined error, valid ones are still returned.
func (f *Fetcher) FindValidFeeds(
	ctx context.Context,
	text string,
) ([]domain.Feed, error) {
	urls, err := FindFeedURLs(text)
	if err != nil {
		return nil, fmt.Errorf("find feed URLs: %w", err)
	}

	feeds := make([]domain.Feed, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	var errs []error

	for _, u := range urls {
		feed, validateErr := f.ValidateFeed(ctx, u)
		if validateErr != nil {
			errs = append(errs, fmt.Errorf("validate feed (URL = %s): %w", u, validateErr))
			continue
		}

		if _, ok := seen[feed.URL]; ok {
			continue
		}

		feeds = append(feeds, feed)
		seen[feed.URL] = struct{}{}
	}

	return feeds, errors.Join(errs...)
}

func (f *Fetcher) convertItem(
	ctx context.Context,
	feedID int64,
	feedURL string,
	it *gofeed.Item,
	now time.Time,
	cutoff time.Time,
) (domain.Item, bool) {
	published := now
	if it.PublishedParsed != nil {
		published = *it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		published = *it.UpdatedParsed
	}

	if !published.After(cutoff) {
		return domain.Item{}, false
	}

	title := strings.TrimSpace(it.Title)
	link := strings.TrimSpace(it.Link)
	if link == "" {
		f.log.WarnContext(ctx, "Skipping feed item with empty URL",
			"feedURL", feedURL,
			"itemTitle", title)

		return domain.Item{}, false
	}

	body := HTMLToText(it.Content)
	if body == "" {
		body = HTMLToText(it.Description)
	}

	return domain.Item{
		FeedID:      feedID,
		URL:         link,
		Title:       title,
		Body:        body,
		PublishedAt: published.UTC(),
	}, true
}
