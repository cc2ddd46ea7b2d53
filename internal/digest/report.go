package digest

import (
	"log/slog"
	"time"
)

// Report counts what a single pass did.
type Report struct {
	FeedsFetched int
	FeedErrors   int
	NewItems     int
	Pending      int
	Summarized   int
	CacheHits    int
	Fallbacks    int
	Failed       int
	Skipped      int
	Delivered    int
	Elapsed      time.Duration
}

func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("feedsFetched", r.FeedsFetched),
		slog.Int("feedErrors", r.FeedErrors),
		slog.Int("newItems", r.NewItems),
		slog.Int("pending", r.Pending),
		slog.Int("summarized", r.Summarized),
		slog.Int("cacheHits", r.CacheHits),
		slog.Int("fallbacks", r.Fallbacks),
		slog.Int("failed", r.Failed),
		slog.Int("skipped", r.Skipped),
		slog.Int("delivered", r.Delivered),
		slog.Duration("elapsed", r.Elapsed),
	)
}
