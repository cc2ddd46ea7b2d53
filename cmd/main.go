package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedbrief/internal/bot"
	"feedbrief/internal/config"
	"feedbrief/internal/database"
	"feedbrief/internal/digest"
	"feedbrief/internal/feed"
	"feedbrief/internal/scheduler"
	"feedbrief/internal/summarizer"
	"feedbrief/internal/transport"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if code := run(); code != 0 {
		os.Exit(code)
	}
}

func run() int {
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)

		return 1
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return 1
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "DB is initialized",
		"dbPath", cfg.DBPath)

	seedFeeds(ctx, db, cfg.Feeds, log)

	gateway := initGateway(ctx, cfg, log)
	fetcher := feed.NewFetcher(nil, log)

	var (
		s        summarizer.Summarizer
		provider string
	)
	if gateway != nil {
		s = gateway
		provider = gateway.Provider()
	}

	var (
		notifier digest.Notifier = bot.NewLogNotifier(log)
		botInst  *bot.Bot
	)
	if cfg.Token != "" {
		botInst, err = bot.New(bot.Options{
			Token:         cfg.Token,
			Provider:      provider,
			AllowedUsers:  cfg.AllowedUsers,
			DigestChatIDs: cfg.DigestChatIDs,
		}, db, fetcher, log)
		if err != nil {
			log.ErrorContext(ctx, "Failed to initialize bot",
				"error", err,
				"allowedUsersCount", len(cfg.AllowedUsers))

			return 1
		}
		defer botInst.Stop()

		if len(cfg.DigestChatIDs) > 0 {
			notifier = botInst
		} else {
			log.WarnContext(ctx, "DIGEST_CHAT_IDS is empty so digests are written to the log")
		}
	} else {
		log.WarnContext(ctx, "TOKEN is missing so digests are written to the log",
			"envVar", "TOKEN")
	}

	runner := digest.New(db, fetcher, s, notifier, digest.Config{
		Provider:          provider,
		BatchSize:         cfg.BatchSize,
		MaxParallel:       cfg.MaxParallel,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}, log)

	sched := scheduler.New(ctx, runner, cfg.Schedule, cfg.Location(), cfg.PassTimeout, log)
	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", cfg.Schedule,
			"timezone", cfg.Timezone)

		return 1
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		sched.Stop(stopCtx)
	}()

	if botInst != nil {
		botInst.SetRunner(runner)
		go botInst.Start(ctx)
	}

	<-ctx.Done()

	log.InfoContext(ctx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())

	return 0
}

func initGateway(ctx context.Context, cfg config.Config, log *slog.Logger) *summarizer.Gateway {
	if !cfg.SummarizerEnabled() {
		log.WarnContext(ctx, "SUMMARY_API_KEY is missing so fallback will be used",
			"envVar", "SUMMARY_API_KEY",
			"provider", cfg.Provider)

		return nil
	}

	executor := transport.NewExecutor(log,
		transport.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		transport.WithMaxAttempts(cfg.MaxAttempts),
	)

	gateway, err := summarizer.NewGateway(cfg.Provider, cfg.ProviderConfig(), executor, log,
		summarizer.WithLocation(cfg.Location()))
	if err != nil {
		log.ErrorContext(ctx, "Failed to create summary gateway so fallback will be used",
			"error", err,
			"provider", cfg.Provider)

		return nil
	}

	log.InfoContext(ctx, "Summary gateway is initialized",
		"provider", gateway.Provider(),
		"config", cfg.ProviderConfig())

	return gateway
}

func seedFeeds(ctx context.Context, db *database.Database, feeds []string, log *slog.Logger) {
	for _, feedURL := range feeds {
		if _, err := db.AddFeed(ctx, feedURL, ""); err != nil {
			log.ErrorContext(ctx, "Failed to add configured feed",
				"error", err,
				"feedURL", feedURL)
		}
	}
}
