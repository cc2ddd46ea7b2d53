package summarizer

import (
	"strings"
	"testing"
	"time"
)

func words(n int) string {
	ws := make([]string, n)
	for i := range ws {
		ws[i] = "w"
	}

	return strings.Join(ws, " ")
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"Within limit is unchanged", "  one two\nthree ", 3, "  one two\nthree "},
		{"Over limit keeps first words", "one two\tthree four", 2, "one two..."},
		{"Empty text", "", 3, ""},
		{"Non-positive limit is ignored", "one two", 0, "one two"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := TruncateWords(test.text, test.limit)

			if got != test.want {
				t.Errorf("Expected %q, got %q", test.want, got)
			}
		})
	}
}

func TestTruncateWordsLongBody(t *testing.T) {
	got := TruncateWords(words(5000), MaxPromptWords)

	if !strings.HasSuffix(got, truncationMarker) {
		t.Fatalf("expected ellipsis marker at the end")
	}

	kept := strings.Fields(strings.TrimSuffix(got, truncationMarker))
	if len(kept) != MaxPromptWords {
		t.Fatalf("expected %d words, got %d", MaxPromptWords, len(kept))
	}
}

func TestFormatPrompt(t *testing.T) {
	got := FormatPrompt("Title A", "Jan 2, 2025, 3:04 PM UTC", "Body text")

	for _, want := range []string{"Title: Title A", "Published: Jan 2, 2025, 3:04 PM UTC", "\n\nBody text"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected prompt to contain %q, got %q", want, got)
		}
	}

	if strings.Contains(got, "{title}") || strings.Contains(got, "{content}") {
		t.Fatalf("expected placeholders to be replaced, got %q", got)
	}
}

func TestFormatPromptDoesNotExpandPlaceholdersInContent(t *testing.T) {
	got := FormatPrompt("T", "date", "literal {title} in body")

	if !strings.Contains(got, "literal {title} in body") {
		t.Fatalf("expected content placeholders to stay verbatim, got %q", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2025, 3, 7, 18, 5, 0, 0, time.UTC)

	if got := FormatTimestamp(ts, nil); got != "Mar 7, 2025, 6:05 PM UTC" {
		t.Fatalf("unexpected UTC timestamp: %q", got)
	}

	loc := time.FixedZone("CET", 3600)
	if got := FormatTimestamp(ts, loc); got != "Mar 7, 2025, 7:05 PM CET" {
		t.Fatalf("unexpected local timestamp: %q", got)
	}

	if got := FormatTimestamp(time.Time{}, loc); got != unknownDate {
		t.Fatalf("unexpected zero timestamp: %q", got)
	}
}
