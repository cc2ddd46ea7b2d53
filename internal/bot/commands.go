package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"feedbrief/internal/digest"
	"feedbrief/internal/summarizer"

	tgbot "github.com/go-telegram/bot"
)

const welcomeText = `🤖 *Welcome to Feedbrief\!*

I read your feeds and send short summaries of new items\.

– /add \<URLs\> follows RSS / Atom / JSON feeds or public Telegram channels
– /list shows followed feeds
– /remove \<ID\> unfollows a feed
– /providers lists supported summary providers
– /digest runs a digest pass right now`

const failedText = "❌ Failed\\."

func (b *Bot) handleMessage(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)

	switch {
	case isCommand(text, "/start"), isCommand(text, "/help"):
		return b.sendMessage(ctx, chatID, welcomeText)
	case isCommand(text, "/add"):
		return b.handleAddCommand(ctx, chatID, commandArgs(text))
	case isCommand(text, "/list"):
		return b.handleListCommand(ctx, chatID)
	case isCommand(text, "/remove"):
		return b.handleRemoveCommand(ctx, chatID, commandArgs(text))
	case isCommand(text, "/providers"):
		return b.sendMessage(ctx, chatID, formatProviders(b.provider))
	case isCommand(text, "/digest"):
		return b.handleDigestCommand(ctx, chatID)
	case strings.HasPrefix(text, "/"):
		return b.sendMessage(ctx, chatID, "✖️ Unknown command\\. Try /help\\.")
	default:
		return b.handleAddCommand(ctx, chatID, text)
	}
}

func (b *Bot) handleAddCommand(ctx context.Context, chatID int64, text string) error {
	feeds, err := b.finder.FindValidFeeds(ctx, text)

	if len(feeds) == 0 {
		var errs []error
		if err != nil {
			errs = append(errs, fmt.Errorf("find valid feeds: %w", err))
		}

		sendErr := b.sendMessage(ctx, chatID, "✖️ Valid feed URLs are not found\\.")
		if sendErr != nil {
			errs = append(errs, fmt.Errorf("send message: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("find valid feeds: %w", err))
	}

	added := 0
	for _, f := range feeds {
		if _, err = b.store.AddFeed(ctx, f.URL, f.Title); err != nil {
			errs = append(errs, fmt.Errorf("add feed: %w", err))
		} else {
			added++
		}
	}

	reply := "✅ Success\\."
	switch {
	case added == 0:
		reply = failedText
	case len(errs) > 0:
		reply = fmt.Sprintf("⚠️ Partial success \\(%d added\\)\\.", added)
	}

	if err = b.sendMessage(ctx, chatID, reply); err != nil {
		errs = append(errs, fmt.Errorf("send message: %w", err))
	}

	return errors.Join(errs...)
}

func (b *Bot) handleListCommand(ctx context.Context, chatID int64) error {
	feeds, err := b.store.GetFeeds(ctx)
	if err != nil {
		errs := []error{fmt.Errorf("get feeds: %w", err)}

		if sendErr := b.sendMessage(ctx, chatID, failedText); sendErr != nil {
			errs = append(errs, fmt.Errorf("send message: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	if len(feeds) == 0 {
		return b.sendMessage(ctx, chatID, "✖️ Feed list is empty\\.")
	}

	var message strings.Builder
	fmt.Fprintf(&message, "🔍 *Found %d feeds:*\n\n", len(feeds))

	for _, f := range feeds {
		title := f.Title
		if title == "" {
			title = f.URL
		}

		fmt.Fprintf(&message, "`%d` [%s](%s)\n", f.ID, tgbot.EscapeMarkdown(title), escapeLinkURL(f.URL))
	}

	return b.sendMessage(ctx, chatID, message.String())
}

func (b *Bot) handleRemoveCommand(ctx context.Context, chatID int64, args string) error {
	feedID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return b.sendMessage(ctx, chatID, "✖️ Usage: /remove \\<ID\\>\\. IDs are shown by /list\\.")
	}

	removed, err := b.store.RemoveFeed(ctx, feedID)
	if err != nil {
		errs := []error{fmt.Errorf("remove feed: %w", err)}

		if sendErr := b.sendMessage(ctx, chatID, failedText); sendErr != nil {
			errs = append(errs, fmt.Errorf("send message: %w", sendErr))
		}

		return errors.Join(errs...)
	}

	if !removed {
		return b.sendMessage(ctx, chatID, fmt.Sprintf("✖️ Feed %d is not found\\.", feedID))
	}

	return b.sendMessage(ctx, chatID, "✅ Feed is removed\\.")
}

func (b *Bot) handleDigestCommand(ctx context.Context, chatID int64) error {
	if b.runner == nil {
		return b.sendMessage(ctx, chatID, failedText)
	}

	report, err := b.runner.Run(ctx)
	if errors.Is(err, digest.ErrPassInProgress) {
		return b.sendMessage(ctx, chatID, "⏳ A digest pass is already running\\.")
	}

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("run digest pass: %w", err))
	}

	if sendErr := b.sendMessage(ctx, chatID, formatReport(report, err)); sendErr != nil {
		errs = append(errs, fmt.Errorf("send message: %w", sendErr))
	}

	return errors.Join(errs...)
}

func formatProviders(active string) string {
	var message strings.Builder
	message.WriteString("🧠 *Summary providers:*\n\n")

	for _, name := range summarizer.ListSupportedProviders() {
		if name == active {
			fmt.Fprintf(&message, "– *%s* \\(active\\)\n", tgbot.EscapeMarkdown(name))
			continue
		}

		fmt.Fprintf(&message, "– %s\n", tgbot.EscapeMarkdown(name))
	}

	if active == "" {
		message.WriteString("\nNo API key is configured, summaries fall back to item text\\.")
	}

	return message.String()
}

func formatReport(report digest.Report, err error) string {
	status := "✅ *Digest pass is finished*"
	if err != nil {
		status = "⚠️ *Digest pass finished with errors*"
	}

	return fmt.Sprintf(
		"%s\n\nNew items: %d\nSummarized: %d\nFailed: %d\nDelivered: %d",
		status,
		report.NewItems,
		report.Summarized+report.CacheHits+report.Fallbacks,
		report.Failed,
		report.Delivered,
	)
}

// isCommand matches "/cmd", "/cmd args" and "/cmd@botname".
func isCommand(text string, command string) bool {
	head, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	head, _, _ = strings.Cut(head, "@")

	return head == command
}

func commandArgs(text string) string {
	_, args, _ := strings.Cut(strings.TrimSpace(text), " ")

	return strings.TrimSpace(args)
}
