package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"feedbrief/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

	minPartsForTelegramChannelSlugStartingWithS = 2

	telegramHost          = "t.me"
	telegramItemMaxTitle  = 80
	telegramUntitledTitle = "Telegram post"
)

var telegramSlugRe = regexp.MustCompile(`^\w{5,32}$`)

// Public Telegram channels have no feed; their web preview at t.me/s/<slug>
// is scraped instead.
type channelItem struct {
	URL       string
	Text      string
	published time.Time
}

func TelegramMessageCanonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}

	u.RawQuery = ""
	u.Fragment = ""

	return u.String()
}

func TelegramChannelCanonicalURL(slug string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ""
	}

	return fmt.Sprintf("https://%s/s/%s", telegramHost, slug)
}

func isTelegramChannelURL(raw string) (bool, string) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return false, ""
	}

	if u.Host != telegramHost {
		return false, ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return false, ""
	}

	parts := strings.Split(path, "/")

	var slug string

	switch parts[0] {
	case "s":
		if len(parts) < minPartsForTelegramChannelSlugStartingWithS {
			return false, ""
		}
		slug = parts[1]
	default:
		slug = parts[0]
	}

	slug = strings.TrimSpace(slug)

	if !telegramSlugRe.MatchString(slug) {
		return false, ""
	}

	return true, slug
}

func (f *Fetcher) fetchTelegramChannelFeed(
	ctx context.Context,
	feedID int64,
	slug string,
	now time.Time,
	cutoff time.Time,
) ([]domain.Item, string, error) {
	channelItems, title, err := f.fetchTelegramChannel(ctx, slug)
	if err != nil && len(channelItems) == 0 {
		return nil, "", fmt.Errorf("fetch Telegram channel: %w", err)
	}
	if err != nil {
		f.log.WarnContext(ctx, "Some Telegram posts were skipped",
			"error", err,
			"slug", slug)
	}

	var items []domain.Item
	for _, it := range channelItems {
		published := it.published
		if published.IsZero() {
			published = now
		}

		if !published.After(cutoff) {
			continue
		}

		items = append(items, domain.Item{
			FeedID:      feedID,
			URL:         it.URL,
			Title:       telegramItemTitle(it.Text),
			Body:        it.Text,
			PublishedAt: published.UTC(),
		})
	}

	return items, title, nil
}

func (f *Fetcher) fetchTelegramChannel(
	ctx context.Context,
	slug string,
) ([]channelItem, string, error) {
	canonicalURL := TelegramChannelCanonicalURL(slug)
	if canonicalURL == "" {
		return nil, "", errors.New("slug is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, canonicalURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req) //nolint:gosec // Telegram URL
	if err != nil {
		return nil, "", fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			f.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"canonicalURL", canonicalURL,
				"operation", "fetchTelegramChannel",
				"slug", slug)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("create document from reader: %w", err)
	}

	items, parseErr := parseTelegramChannelDocument(doc)

	return items, telegramChannelTitle(doc), parseErr
}

func parseTelegramChannelDocument(doc *goquery.Document) ([]channelItem, error) {
	var items []channelItem
	var errs []error

	doc.Find("a.tgme_widget_message_date").Each(func(_ int, s *goquery.Selection) {
		item, processErr := processFoundDocItem(s)
		if processErr != nil {
			errs = append(errs, fmt.Errorf("process found doc item: %w", processErr))
			return
		}

		items = append(items, item)
	})

	return items, errors.Join(errs...)
}

func telegramChannelTitle(doc *goquery.Document) string {
	if content, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if title := strings.TrimSpace(content); title != "" {
			return title
		}
	}

	return strings.TrimSpace(doc.Find(".tgme_channel_info_header_title").Text())
}

func processFoundDocItem(s *goquery.Selection) (channelItem, error) {
	href, ok := s.Attr("href")
	if !ok || href == "" {
		return channelItem{}, errors.New("href empty")
	}

	href = TelegramMessageCanonicalURL(href)

	var textBuilder strings.Builder
	message := s.ParentsFiltered(".tgme_widget_message").First()
	message.Find(".tgme_widget_message_text, .tgme_widget_message_caption").Each(
		func(_ int, inner *goquery.Selection) {
			inner.Find("br").Each(func(_ int, br *goquery.Selection) {
				br.ReplaceWithHtml("\n")
			})
			fragment := strings.TrimSpace(inner.Text())
			if fragment == "" {
				return
			}
			if textBuilder.Len() > 0 {
				textBuilder.WriteString("\n")
			}
			textBuilder.WriteString(fragment)
		},
	)

	var t time.Time
	datetime := strings.TrimSpace(s.Find("time").AttrOr("datetime", ""))

	if datetime != "" {
		parsed, timeParseErr := time.Parse(time.RFC3339, datetime)
		if timeParseErr != nil {
			return channelItem{}, fmt.Errorf("parse datetime: %w", timeParseErr)
		}
		t = parsed
	}

	return channelItem{URL: href, Text: strings.TrimSpace(textBuilder.String()), published: t}, nil
}

// telegramItemTitle uses the first line of the post, shortened, since
// channel posts carry no title of their own.
func telegramItemTitle(text string) string {
	firstLine, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	firstLine = strings.Join(strings.Fields(firstLine), " ")
	if firstLine == "" {
		return telegramUntitledTitle
	}

	runes := []rune(firstLine)
	if len(runes) <= telegramItemMaxTitle {
		return firstLine
	}

	return strings.TrimSpace(string(runes[:telegramItemMaxTitle])) + "..."
}
