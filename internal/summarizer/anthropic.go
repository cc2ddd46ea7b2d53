package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const anthropicVersion = "2023-06-01"

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// AnthropicClient speaks the messages convention with a key header and a
// pinned API version header.
type AnthropicClient struct {
	cfg    ProviderConfig
	sender Sender
	auth   authPlacement
	opts   clientOptions
}

var _ Client = (*AnthropicClient)(nil)

func NewAnthropicClient(cfg ProviderConfig, sender Sender, opts ...ClientOption) *AnthropicClient {
	return &AnthropicClient{
		cfg:    cfg.normalized(),
		sender: sender,
		auth:   authPlacement{header: "x-api-key"},
		opts:   newClientOptions(opts),
	}
}

func (c *AnthropicClient) Name() string {
	return ProviderAnthropic
}

func (c *AnthropicClient) BuildRequest(item Item) (Request, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxSummaryTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: promptFor(item, c.opts.location)},
		},
	})
	if err != nil {
		return Request{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	header := http.Header{}
	c.auth.apply(header, c.cfg.APIKey)
	header.Set("anthropic-version", anthropicVersion)

	return Request{
		URL:    joinEndpoint(c.cfg.Endpoint, "messages"),
		Body:   body,
		Header: header,
	}, nil
}

func (c *AnthropicClient) ParseResponse(body []byte) (string, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode anthropic response: %w", ErrMalformedResponse, err)
	}

	if len(resp.Content) == 0 {
		return "", fmt.Errorf("%w: content is empty", ErrMalformedResponse)
	}

	return nonEmpty(resp.Content[0].Text)
}

func (c *AnthropicClient) Summarize(ctx context.Context, item Item) (string, error) {
	return summarize(ctx, c.cfg, c.sender, c, item)
}
