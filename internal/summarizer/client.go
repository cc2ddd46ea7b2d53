package summarizer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTemperature = 0.7
	maxSummaryTokens   = 300
)

// Request is a provider-shaped HTTP payload. Only the transport reads it.
type Request struct {
	URL    string
	Body   []byte
	Header http.Header
}

// Sender delivers a request and returns the raw response body, retrying as
// it sees fit. *transport.Executor implements it.
type Sender interface {
	Send(ctx context.Context, url string, body []byte, header http.Header) ([]byte, error)
}

// Client is one backend's wire convention.
type Client interface {
	Name() string
	BuildRequest(item Item) (Request, error)
	ParseResponse(body []byte) (string, error)
	Summarize(ctx context.Context, item Item) (string, error)
}

// wire is the part of Client that differs per backend.
type wire interface {
	BuildRequest(item Item) (Request, error)
	ParseResponse(body []byte) (string, error)
}

// summarize runs the common flow of every client: validate, build, send,
// parse. The configuration is checked before anything touches the network.
func summarize(
	ctx context.Context,
	cfg ProviderConfig,
	sender Sender,
	w wire,
	item Item,
) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	req, err := w.BuildRequest(item)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	body, err := sender.Send(ctx, req.URL, req.Body, req.Header)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}

	summary, err := w.ParseResponse(body)
	if err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	return summary, nil
}

// authPlacement describes where a backend expects the credential in headers.
type authPlacement struct {
	header string
	prefix string
}

func (a authPlacement) apply(header http.Header, apiKey string) {
	header.Set(a.header, a.prefix+apiKey)
}

func joinEndpoint(endpoint string, path string) string {
	return strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}

func nonEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: summary text is empty", ErrMalformedResponse)
	}

	return text, nil
}

type clientOptions struct {
	location *time.Location
}

// ClientOption tweaks how a client renders prompts.
type ClientOption func(*clientOptions)

// WithLocation sets the time zone used for the publication timestamp.
func WithLocation(loc *time.Location) ClientOption {
	return func(o *clientOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

func newClientOptions(opts []ClientOption) clientOptions {
	o := clientOptions{location: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
