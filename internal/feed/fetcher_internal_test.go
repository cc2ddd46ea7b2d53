package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feedbrief/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title> Example Blog </title>
  <link>https://blog.example</link>
  <item>
    <title>Fresh post</title>
    <link>https://blog.example/fresh</link>
    <description><![CDATA[<p>Hello <b>world</b></p><p>Second&nbsp;paragraph</p>]]></description>
    <pubDate>Thu, 02 Jan 2025 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Old post</title>
    <link>https://blog.example/old</link>
    <description>old</description>
    <pubDate>Mon, 30 Dec 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>No link</title>
    <description>orphan</description>
    <pubDate>Thu, 02 Jan 2025 11:00:00 +0000</pubDate>
  </item>
</channel>
</rss>`

const testChannelHTML = `<html><head>
<meta property="og:title" content="Example Channel">
</head><body>
<div class="tgme_widget_message">
  <div class="tgme_widget_message_text">First line<br>second line</div>
  <a class="tgme_widget_message_date" href="https://t.me/example/1?single"><time datetime="2025-01-02T09:00:00+00:00"></time></a>
</div>
<div class="tgme_widget_message">
  <div class="tgme_widget_message_text">Broken date</div>
  <a class="tgme_widget_message_date" href="https://t.me/example/2"><time datetime="yesterday"></time></a>
</div>
</body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(now time.Time) *Fetcher {
	f := NewFetcher(nil, discardLogger())
	f.now = func() time.Time { return now }

	return f
}

func rssServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rss" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, testRSS)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestFetchFeedKeepsFreshItems(t *testing.T) {
	srv := rssServer(t)
	f := newTestFetcher(time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC))

	items, title, err := f.FetchFeed(context.Background(), domain.StoredFeed{ID: 7, URL: srv.URL + "/rss"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if title != "Example Blog" {
		t.Fatalf("unexpected title: %q", title)
	}

	if len(items) != 1 {
		t.Fatalf("expected only the fresh item, got %+v", items)
	}

	item := items[0]
	if item.FeedID != 7 || item.URL != "https://blog.example/fresh" || item.Title != "Fresh post" {
		t.Fatalf("unexpected item: %+v", item)
	}

	if item.Body != "Hello world Second paragraph" {
		t.Fatalf("unexpected body: %q", item.Body)
	}

	if !item.PublishedAt.Equal(time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected published time: %v", item.PublishedAt)
	}
}

func TestFetchFeedsJoinsErrors(t *testing.T) {
	srv := rssServer(t)
	f := newTestFetcher(time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC))

	feeds := []domain.StoredFeed{
		{ID: 1, URL: srv.URL + "/rss"},
		{ID: 2, URL: srv.URL + "/missing"},
		{ID: 3, URL: srv.URL + "/rss"},
	}

	results, err := f.FetchFeeds(context.Background(), feeds)
	if err == nil || !strings.Contains(err.Error(), "ID = 2") {
		t.Fatalf("expected error for feed 2, got %v", err)
	}

	if len(results) != 2 || results[0].Feed.ID != 1 || results[1].Feed.ID != 3 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestValidateFeed(t *testing.T) {
	srv := rssServer(t)
	f := newTestFetcher(time.Now())

	got, err := f.ValidateFeed(context.Background(), " "+srv.URL+"/rss ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.URL != srv.URL+"/rss" || got.Title != "Example Blog" {
		t.Fatalf("unexpected feed: %+v", got)
	}

	if _, err = f.ValidateFeed(context.Background(), "  "); err == nil {
		t.Fatalf("expected empty URL to be rejected")
	}

	if _, err = f.ValidateFeed(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatalf("expected missing feed to be rejected")
	}
}

func TestParseTelegramChannelDocument(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(testChannelHTML))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}

	items, parseErr := parseTelegramChannelDocument(doc)
	if parseErr == nil {
		t.Fatalf("expected error for the broken datetime")
	}

	if len(items) != 1 {
		t.Fatalf("expected one parsed item, got %+v", items)
	}

	if items[0].URL != "https://t.me/example/1" || items[0].Text != "First line\nsecond line" {
		t.Fatalf("unexpected item: %+v", items[0])
	}

	if title := telegramChannelTitle(doc); title != "Example Channel" {
		t.Fatalf("unexpected channel title: %q", title)
	}
}

func TestIsTelegramChannelURL(t *testing.T) {
	tests := []struct {
		raw      string
		wantOK   bool
		wantSlug string
	}{
		{"https://t.me/s/example_channel", true, "example_channel"},
		{"https://t.me/example_channel", true, "example_channel"},
		{"https://t.me/s/", false, ""},
		{"https://t.me/abc", false, ""},
		{"https://example.com/example_channel", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ok, slug := isTelegramChannelURL(tt.raw)
			if ok != tt.wantOK || slug != tt.wantSlug {
				t.Fatalf("got (%v, %q), want (%v, %q)", ok, slug, tt.wantOK, tt.wantSlug)
			}
		})
	}
}

func TestTelegramItemTitle(t *testing.T) {
	if got := telegramItemTitle("  Breaking   news\nmore text"); got != "Breaking news" {
		t.Fatalf("unexpected title: %q", got)
	}

	if got := telegramItemTitle(""); got != telegramUntitledTitle {
		t.Fatalf("unexpected title for empty text: %q", got)
	}

	long := strings.Repeat("a", telegramItemMaxTitle+10)
	if got := telegramItemTitle(long); len([]rune(got)) != telegramItemMaxTitle+3 {
		t.Fatalf("expected shortened title, got %d runes", len([]rune(got)))
	}
}
