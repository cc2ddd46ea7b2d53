package summarizer

import (
	"strings"
	"time"
)

const (
	// MaxPromptWords keeps prompts within every backend's context window
	// without tuning per provider.
	MaxPromptWords = 3000

	truncationMarker = "..."
	unknownDate      = "unknown date"
	timestampLayout  = "Jan 2, 2006, 3:04 PM MST"

	systemPrompt = "You are a helpful assistant that writes short, accurate summaries of articles."

	promptTemplate = `Summarize the following article in 2-3 sentences.
Keep the key facts, names and numbers. Answer in the language of the article, without any preamble.

Title: {title}
Published: {publishedAt}

{content}`
)

// FormatPrompt renders the summary prompt. Placeholders are substituted in a
// single pass, so placeholder-like text inside the content stays as is.
func FormatPrompt(title, publishedAt, content string) string {
	r := strings.NewReplacer(
		"{title}", title,
		"{publishedAt}", publishedAt,
		"{content}", TruncateWords(content, MaxPromptWords),
	)

	return r.Replace(promptTemplate)
}

// TruncateWords keeps the first limit words of text followed by an ellipsis.
// Text within the limit is returned unchanged.
func TruncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if limit <= 0 || len(words) <= limit {
		return text
	}

	return strings.Join(words[:limit], " ") + truncationMarker
}

// FormatTimestamp renders t in loc for humans. A nil loc means UTC.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return unknownDate
	}
	if loc == nil {
		loc = time.UTC
	}

	return t.In(loc).Format(timestampLayout)
}

func promptFor(item Item, loc *time.Location) string {
	return FormatPrompt(
		strings.TrimSpace(item.Title),
		FormatTimestamp(item.PublishedAt, loc),
		item.Body,
	)
}
