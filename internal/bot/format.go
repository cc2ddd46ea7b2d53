package bot

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"feedbrief/internal/domain"

	tgbot "github.com/go-telegram/bot"
)

const (
	telegramMessageMaxLength = 4096
	maxTitleRunes            = 200
	maxSummaryRunes          = 1500

	digestHeader         = "📰 *Digest*\n\n"
	digestContinueHeader = "📰 *Digest \\(continue\\)*\n\n"
)

// Inside the parentheses of a MarkdownV2 link only ')' and '\' are special.
var linkURLReplacer = strings.NewReplacer(`\`, `\\`, `)`, `\)`)

type feedGroup struct {
	id      int64
	title   string
	url     string
	entries []domain.DigestEntry
}

// FormatDigest renders entries as MarkdownV2 messages grouped by feed, each
// within the Telegram message size limit.
func FormatDigest(entries []domain.DigestEntry) []string {
	groups := groupByFeed(entries)
	if len(groups) == 0 {
		return nil
	}

	var messages []string
	var currentMessage strings.Builder

	currentMessage.WriteString(digestHeader)

	flush := func(feedHeader string) {
		messages = append(messages, currentMessage.String())
		currentMessage.Reset()
		currentMessage.WriteString(digestContinueHeader)
		currentMessage.WriteString(feedHeader)
	}

	for _, g := range groups {
		feedHeader := fmt.Sprintf("📌 *[%s](%s)*\n\n", tgbot.EscapeMarkdown(g.title), escapeLinkURL(g.url))
		firstBulletPoint := formatEntry(g.entries[0])

		if currentMessage.Len()+len(feedHeader)+len(firstBulletPoint) > telegramMessageMaxLength {
			flush("")
		}

		currentMessage.WriteString(feedHeader)

		for _, e := range g.entries {
			bulletPoint := formatEntry(e)

			if currentMessage.Len()+len(bulletPoint) > telegramMessageMaxLength {
				flush(feedHeader)
			}

			currentMessage.WriteString(bulletPoint)
		}
	}

	messages = append(messages, currentMessage.String())

	return messages
}

func formatEntry(e domain.DigestEntry) string {
	title := shorten(e.Title, maxTitleRunes)
	if title == "" {
		title = e.URL
	}

	return fmt.Sprintf("– [%s](%s)\n%s\n\n",
		tgbot.EscapeMarkdown(title),
		escapeLinkURL(e.URL),
		tgbot.EscapeMarkdown(shorten(e.Summary, maxSummaryRunes)))
}

func groupByFeed(entries []domain.DigestEntry) []*feedGroup {
	byID := make(map[int64]*feedGroup)

	for _, e := range entries {
		e.URL = strings.TrimSpace(e.URL)
		if e.URL == "" {
			continue
		}

		g, ok := byID[e.FeedID]
		if !ok {
			title := strings.TrimSpace(e.FeedTitle)
			feedURL := strings.TrimSpace(e.FeedURL)
			if feedURL == "" {
				feedURL = e.URL
			}
			if title == "" {
				title = feedURL
			}

			g = &feedGroup{id: e.FeedID, title: title, url: feedURL}
			byID[e.FeedID] = g
		}

		g.entries = append(g.entries, e)
	}

	groups := make([]*feedGroup, 0, len(byID))
	for _, g := range byID {
		groups = append(groups, g)
	}

	slices.SortFunc(groups, func(a, b *feedGroup) int { return cmp.Compare(a.id, b.id) })

	return groups
}

func escapeLinkURL(u string) string {
	return linkURLReplacer.Replace(strings.TrimSpace(u))
}

func shorten(s string, limit int) string {
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return strings.TrimSpace(string(runes[:limit])) + "..."
}
