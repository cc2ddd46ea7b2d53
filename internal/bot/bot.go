package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"feedbrief/internal/digest"
	"feedbrief/internal/domain"
	"feedbrief/internal/ratelimiter"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

const (
	updateProcessingTimeout = 60 * time.Second
	digestCommandTimeout    = 15 * time.Minute
)

var ErrNoRecipients = errors.New("no digest chats configured")

type Store interface {
	AddFeed(ctx context.Context, feedURL string, feedTitle string) (int64, error)
	GetFeeds(ctx context.Context) ([]domain.StoredFeed, error)
	RemoveFeed(ctx context.Context, feedID int64) (bool, error)
}

type FeedFinder interface {
	FindValidFeeds(ctx context.Context, text string) ([]domain.Feed, error)
}

type DigestRunner interface {
	Run(ctx context.Context) (digest.Report, error)
}

type messageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error)
}

type Bot struct {
	tg            *tgbot.Bot
	api           messageSender
	rateLimiter   *ratelimiter.RateLimiter
	store         Store
	finder        FeedFinder
	runner        DigestRunner
	provider      string
	allowedUsers  []int64
	digestChatIDs []int64
	log           *slog.Logger
}

type Options struct {
	Token         string
	Provider      string
	AllowedUsers  []int64
	DigestChatIDs []int64
}

var _ digest.Notifier = (*Bot)(nil)

// New connects to the Bot API. runner may be set later with SetRunner when
// the runner itself needs the bot as its notifier.
func New(
	opts Options,
	store Store,
	finder FeedFinder,
	log *slog.Logger,
) (*Bot, error) {
	b := &Bot{
		rateLimiter:   ratelimiter.New(log),
		store:         store,
		finder:        finder,
		provider:      opts.Provider,
		allowedUsers:  opts.AllowedUsers,
		digestChatIDs: opts.DigestChatIDs,
		log:           log,
	}

	tg, err := tgbot.New(strings.TrimSpace(opts.Token),
		tgbot.WithDefaultHandler(b.defaultHandler),
		tgbot.WithErrorsHandler(func(err error) {
			log.Error("Telegram polling error", "error", err)
		}),
	)
	if err != nil {
		b.rateLimiter.Stop()

		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.tg = tg
	b.api = tg

	return b, nil
}

func (b *Bot) SetRunner(runner DigestRunner) {
	b.runner = runner
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	b.log.InfoContext(ctx, "Bot is started",
		"allowedUsers", len(b.allowedUsers),
		"digestChats", len(b.digestChatIDs))

	b.tg.Start(ctx)

	b.log.InfoContext(ctx, "Bot context is done",
		"error", ctx.Err())
}

func (b *Bot) Stop() {
	if b.rateLimiter != nil {
		b.rateLimiter.Stop()
	}
}

// SendDigest delivers entries to every configured digest chat.
func (b *Bot) SendDigest(ctx context.Context, entries []domain.DigestEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if len(b.digestChatIDs) == 0 {
		return ErrNoRecipients
	}

	messages := FormatDigest(entries)

	var errs []error
	for _, chatID := range b.digestChatIDs {
		for _, message := range messages {
			if err := b.sendMessage(ctx, chatID, message); err != nil {
				errs = append(errs, fmt.Errorf("send message (chat ID = %d): %w", chatID, err))
				break
			}
		}
	}

	return errors.Join(errs...)
}

func (b *Bot) defaultHandler(ctx context.Context, _ *tgbot.Bot, update *tgmodels.Update) {
	b.handleUpdate(ctx, update)
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgmodels.Update) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return
	}

	message := update.Message
	chatID := message.Chat.ID
	userID := message.From.ID

	if !b.userAllowed(userID) {
		b.log.DebugContext(ctx, "User is not allowed",
			"userID", userID,
			"chatID", chatID,
			"username", message.From.Username)

		return
	}

	timeout := updateProcessingTimeout
	if isCommand(message.Text, "/digest") {
		timeout = digestCommandTimeout
	}

	updateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.handleMessage(updateCtx, chatID, message.Text); err != nil {
		b.log.ErrorContext(updateCtx, "Failed to handle message",
			"error", err,
			"chatID", chatID,
			"userID", userID,
			"messageID", message.ID)
	}
}

func (b *Bot) userAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || slices.Contains(b.allowedUsers, userID)
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) error {
	disablePreview := true

	return b.rateLimiter.Send(ctx, chatID, func(ctx context.Context) error {
		_, err := b.api.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: tgmodels.ParseModeMarkdown,
			LinkPreviewOptions: &tgmodels.LinkPreviewOptions{
				IsDisabled: &disablePreview,
			},
		})

		return err
	})
}

// LogNotifier writes digests to the log. It stands in for the bot when no
// Telegram token or digest chat is configured.
type LogNotifier struct {
	log *slog.Logger
}

var _ digest.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendDigest(ctx context.Context, entries []domain.DigestEntry) error {
	for _, e := range entries {
		n.log.InfoContext(ctx, "Digest entry",
			"itemID", e.ItemID,
			"feed", e.FeedTitle,
			"title", e.Title,
			"url", e.URL,
			"summary", e.Summary)
	}

	return nil
}
