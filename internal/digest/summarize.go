package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"feedbrief/internal/domain"
	"feedbrief/internal/summarizer"
)

const fallbackSummaryMaxChars = 200

type outcome struct {
	summary  string
	provider string
	cached   bool
	err      error
}

// summarizeItems runs at most MaxParallel summaries at once. Outcomes are
// index-aligned with items.
func (r *Runner) summarizeItems(ctx context.Context, items []domain.Item) []outcome {
	outcomes := make([]outcome, len(items))
	if len(items) == 0 {
		return outcomes
	}

	workerCount := min(r.cfg.MaxParallel, len(items))

	tasks := make(chan int)
	var wg sync.WaitGroup

	for range workerCount {
		wg.Go(func() {
			for i := range tasks {
				outcomes[i] = r.summarizeItem(ctx, items[i])
			}
		})
	}

	for i := range items {
		tasks <- i
	}

	close(tasks)
	wg.Wait()

	return outcomes
}

func (r *Runner) summarizeItem(ctx context.Context, item domain.Item) outcome {
	body := strings.TrimSpace(item.Body)
	if body == "" || r.summarizer == nil {
		return outcome{
			summary:  fallbackSummary(body, item.Title, item.URL),
			provider: FallbackProvider,
		}
	}

	now := r.now().UTC()
	cacheKey := summaryCacheKey(item.URL, body)

	if summary, ok := r.cache.get(cacheKey, now); ok {
		return outcome{summary: summary, provider: r.cfg.Provider, cached: true}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return outcome{err: fmt.Errorf("wait for rate limiter: %w", err)}
		}
	}

	summary, err := r.summarizer.Summarize(ctx, summarizer.Item{
		Title:       item.Title,
		Body:        body,
		PublishedAt: item.PublishedAt,
	})
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to summarize item",
			"error", err,
			"itemID", item.ID,
			"url", item.URL,
			"bodyLen", len(body))

		return outcome{err: err}
	}

	summary = normalizeSummary(summary)
	if summary == "" {
		return outcome{
			summary:  fallbackSummary(body, item.Title, item.URL),
			provider: FallbackProvider,
		}
	}

	r.cache.set(cacheKey, summary, now.Add(summaryCacheTTL), now)

	return outcome{summary: summary, provider: r.cfg.Provider}
}

// fallbackSummary is the start of the item text, or its title, or its URL.
func fallbackSummary(text string, title string, itemURL string) string {
	normalized := normalizeSummary(text)
	if normalized == "" {
		normalized = normalizeSummary(title)
	}
	if normalized == "" {
		return itemURL
	}

	runes := []rune(normalized)
	if len(runes) <= fallbackSummaryMaxChars {
		return normalized
	}

	return strings.TrimSpace(string(runes[:fallbackSummaryMaxChars])) + "..."
}
