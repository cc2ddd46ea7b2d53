package summarizer

import (
	"context"
	"time"
)

// Item describes the content a summary is requested for.
type Item struct {
	Title string
	// Body contains the plain text to summarise. It may be arbitrarily long;
	// the prompt keeps only the first MaxPromptWords words.
	Body        string
	PublishedAt time.Time
}

// Summarizer produces a single summary for a given item.
type Summarizer interface {
	Summarize(ctx context.Context, item Item) (string, error)
}
