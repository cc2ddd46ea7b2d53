package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GeminiClient speaks the generateContent convention: content parts in the
// body and the key in the query string.
type GeminiClient struct {
	cfg    ProviderConfig
	sender Sender
	opts   clientOptions
}

var _ Client = (*GeminiClient)(nil)

func NewGeminiClient(cfg ProviderConfig, sender Sender, opts ...ClientOption) *GeminiClient {
	return &GeminiClient{
		cfg:    cfg.normalized(),
		sender: sender,
		opts:   newClientOptions(opts),
	}
}

func (c *GeminiClient) Name() string {
	return ProviderGemini
}

func (c *GeminiClient) BuildRequest(item Item) (Request, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: promptFor(item, c.opts.location)}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     defaultTemperature,
			MaxOutputTokens: maxSummaryTokens,
		},
	})
	if err != nil {
		return Request{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	path := fmt.Sprintf("models/%s:generateContent?key=%s", c.cfg.Model, url.QueryEscape(c.cfg.APIKey))

	return Request{
		URL:    joinEndpoint(c.cfg.Endpoint, path),
		Body:   body,
		Header: http.Header{},
	}, nil
}

func (c *GeminiClient) ParseResponse(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode gemini response: %w", ErrMalformedResponse, err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: candidates are empty", ErrMalformedResponse)
	}

	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: content parts are empty", ErrMalformedResponse)
	}

	return nonEmpty(parts[0].Text)
}

func (c *GeminiClient) Summarize(ctx context.Context, item Item) (string, error) {
	return summarize(ctx, c.cfg, c.sender, c, item)
}
