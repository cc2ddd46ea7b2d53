package summarizer

import (
	"fmt"
	"strings"
)

const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderDeepSeek   = "deepseek"
	ProviderGroq       = "groq"
	ProviderMistral    = "mistral"
	ProviderOpenRouter = "openrouter"
	ProviderXAI        = "xai"
)

type providerSpec struct {
	name     string
	endpoint string
	model    string
	build    func(name string, cfg ProviderConfig, sender Sender, opts []ClientOption) Client
}

func buildChatCompletion(name string, cfg ProviderConfig, sender Sender, opts []ClientOption) Client {
	return NewChatCompletionClient(name, cfg, sender, opts...)
}

func buildGemini(_ string, cfg ProviderConfig, sender Sender, opts []ClientOption) Client {
	return NewGeminiClient(cfg, sender, opts...)
}

func buildAnthropic(_ string, cfg ProviderConfig, sender Sender, opts []ClientOption) Client {
	return NewAnthropicClient(cfg, sender, opts...)
}

// providers is ordered; SupportedProviders reports it in this order.
var providers = []providerSpec{
	{ProviderOpenAI, "https://api.openai.com/v1", "gpt-4o-mini", buildChatCompletion},
	{ProviderAnthropic, "https://api.anthropic.com/v1", "claude-3-5-haiku-latest", buildAnthropic},
	{ProviderGemini, "https://generativelanguage.googleapis.com/v1beta", "gemini-2.0-flash", buildGemini},
	{ProviderDeepSeek, "https://api.deepseek.com/v1", "deepseek-chat", buildChatCompletion},
	{ProviderGroq, "https://api.groq.com/openai/v1", "llama-3.1-8b-instant", buildChatCompletion},
	{ProviderMistral, "https://api.mistral.ai/v1", "mistral-small-latest", buildChatCompletion},
	{ProviderOpenRouter, "https://openrouter.ai/api/v1", "openai/gpt-4o-mini", buildChatCompletion},
	{ProviderXAI, "https://api.x.ai/v1", "grok-2-latest", buildChatCompletion},
}

func lookup(name string) (providerSpec, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, p := range providers {
		if p.name == normalized {
			return p, true
		}
	}

	return providerSpec{}, false
}

// SupportedProviders lists provider names in a stable order.
func SupportedProviders() []string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.name)
	}

	return names
}

// IsSupported matches name case-insensitively.
func IsSupported(name string) bool {
	_, ok := lookup(name)

	return ok
}

// DefaultEndpoint returns the public API base URL of a provider, or "" when
// the provider is unknown.
func DefaultEndpoint(name string) string {
	p, _ := lookup(name)

	return p.endpoint
}

// DefaultModel returns a reasonable model for summaries, or "" when the
// provider is unknown.
func DefaultModel(name string) string {
	p, _ := lookup(name)

	return p.model
}

// Factory builds provider clients that share one Sender.
type Factory struct {
	sender Sender
	opts   []ClientOption
}

func NewFactory(sender Sender, opts ...ClientOption) *Factory {
	return &Factory{
		sender: sender,
		opts:   opts,
	}
}

// Create returns the client for name. The configuration is not validated
// here; clients validate it on every Summarize call.
func (f *Factory) Create(name string, cfg ProviderConfig) (Client, error) {
	p, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			ErrUnknownProvider, name, strings.Join(SupportedProviders(), ", "))
	}

	return p.build(p.name, cfg, f.sender, f.opts), nil
}
