package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Defaults used by NewExecutor unless overridden by an Option.
const (
	DefaultMaxAttempts    = 3
	DefaultRequestTimeout = 30 * time.Second

	maxResponseBytes = 4 << 20
)

// ErrRetriesExhausted wraps the last retryable failure once every attempt
// has been used.
var ErrRetriesExhausted = errors.New("retries exhausted")

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeTerminal
)

// attempt is the result of one HTTP exchange.
type attempt struct {
	outcome outcome
	body    []byte
	failure *ClassifiedError
	err     error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// BackoffFunc picks the delay after a failed attempt.
type BackoffFunc func(attempt int, rateLimited bool) time.Duration

// Executor posts JSON payloads to a backend and retries retryable failures
// with backoff. Attempts for one call are strictly sequential.
type Executor struct {
	client      *http.Client
	maxAttempts int
	backoff     BackoffFunc
	sleep       Sleeper
	log         *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient sets the client used for every attempt.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithMaxAttempts caps the number of attempts per Send, including the first.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBackoff replaces Delay as the retry delay policy.
func WithBackoff(backoff BackoffFunc) Option {
	return func(e *Executor) {
		if backoff != nil {
			e.backoff = backoff
		}
	}
}

// WithSleeper replaces the timer based wait between attempts.
func WithSleeper(sleep Sleeper) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// NewExecutor returns an Executor with the defaults above and opts applied.
func NewExecutor(log *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		client:      &http.Client{Timeout: DefaultRequestTimeout},
		maxAttempts: DefaultMaxAttempts,
		backoff:     Delay,
		sleep:       sleepContext,
		log:         log,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Send POSTs body to url and returns the response body of the first
// successful attempt. Terminal failures are returned as *ClassifiedError;
// a retryable failure on the last attempt is returned wrapped in
// ErrRetriesExhausted.
func (e *Executor) Send(
	ctx context.Context,
	url string,
	body []byte,
	header http.Header,
) ([]byte, error) {
	start := time.Now()
	var last *ClassifiedError

	for n := 1; n <= e.maxAttempts; n++ {
		res := e.do(ctx, url, body, header)

		switch res.outcome {
		case outcomeSuccess:
			if n > 1 {
				e.log.InfoContext(ctx, "Request succeeded after retry",
					"attempt", n,
					"elapsed", time.Since(start))
			}

			return res.body, nil
		case outcomeTerminal:
			if res.err != nil {
				return nil, res.err
			}

			e.log.WarnContext(ctx, "Request failed with terminal error",
				"attempt", n,
				"statusCode", res.failure.StatusCode,
				"code", res.failure.Code,
				"message", res.failure.Message)

			return nil, res.failure
		case outcomeRetryable:
		}

		last = res.failure
		if n == e.maxAttempts {
			break
		}

		delay := e.backoff(n, last.RateLimited())
		e.log.WarnContext(ctx, "Request failed, retrying",
			"attempt", n,
			"maxAttempts", e.maxAttempts,
			"statusCode", last.StatusCode,
			"code", last.Code,
			"message", last.Message,
			"delay", delay)

		if err := e.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("wait before attempt %d: %w", n+1, err)
		}
	}

	e.log.WarnContext(ctx, "Request failed after all attempts",
		"attempts", e.maxAttempts,
		"elapsed", time.Since(start),
		"statusCode", last.StatusCode,
		"code", last.Code)

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, e.maxAttempts, last)
}

func (e *Executor) do(
	ctx context.Context,
	url string,
	body []byte,
	header http.Header,
) attempt {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return attempt{outcome: outcomeTerminal, err: fmt.Errorf("create request: %w", RedactURL(err))}
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt{outcome: outcomeTerminal, err: fmt.Errorf("do request: %w", ctxErr)}
		}

		return attempt{outcome: outcomeRetryable, failure: NetworkError(err)}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			e.log.DebugContext(ctx, "Failed to close response body",
				"error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt{outcome: outcomeTerminal, err: fmt.Errorf("read response: %w", ctxErr)}
		}

		return attempt{outcome: outcomeRetryable, failure: NetworkError(err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		failure := Classify(resp.StatusCode, respBody)
		if !failure.Retryable {
			return attempt{outcome: outcomeTerminal, failure: failure}
		}

		return attempt{outcome: outcomeRetryable, failure: failure}
	}

	return attempt{outcome: outcomeSuccess, body: respBody}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
