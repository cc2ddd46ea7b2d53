package summarizer

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Gateway is the entry point for summaries: it resolves the configured
// provider once and then serves independent Summarize calls. It holds no
// mutable state and is safe for concurrent use.
type Gateway struct {
	client Client
	cfg    ProviderConfig
	log    *slog.Logger
}

var _ Summarizer = (*Gateway)(nil)

// NewGateway fails with ErrUnknownProvider for unsupported names. An invalid
// configuration is accepted here and reported by Summarize without any
// network call.
func NewGateway(
	providerName string,
	cfg ProviderConfig,
	sender Sender,
	log *slog.Logger,
	opts ...ClientOption,
) (*Gateway, error) {
	client, err := NewFactory(sender, opts...).Create(providerName, cfg)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		client: client,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Provider returns the resolved provider name.
func (g *Gateway) Provider() string {
	return g.client.Name()
}

// Summarize returns the trimmed summary text for item or one terminal error.
func (g *Gateway) Summarize(ctx context.Context, item Item) (string, error) {
	start := time.Now()

	summary, err := g.client.Summarize(ctx, item)
	if err != nil {
		g.log.WarnContext(ctx, "Failed to summarize item",
			"error", err,
			"provider", g.client.Name(),
			"config", g.cfg,
			"title", item.Title,
			"bodyLen", len(item.Body),
			"elapsed", time.Since(start))

		return "", err
	}

	g.log.DebugContext(ctx, "Item is summarized",
		"provider", g.client.Name(),
		"title", item.Title,
		"summaryLen", len(summary),
		"elapsed", time.Since(start))

	return strings.TrimSpace(summary), nil
}

// ListSupportedProviders reports the provider names a Gateway accepts.
func ListSupportedProviders() []string {
	return SupportedProviders()
}

// IsProviderSupported matches name case-insensitively.
func IsProviderSupported(name string) bool {
	return IsSupported(name)
}
