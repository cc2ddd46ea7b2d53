package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// Error categories reported in ClassifiedError.Code.
const (
	CodeRequestTimeout = "request_timeout"
	CodeRateLimited    = "rate_limited"
	CodeServerError    = "server_error"
	CodeUnauthorized   = "unauthorized"
	CodeForbidden      = "forbidden"
	CodeBadRequest     = "bad_request"
	CodeNotFound       = "not_found"
	CodeClientError    = "client_error"
	CodeNetwork        = "network"
	CodeCanceled       = "canceled"

	maxMessageLen = 300
)

// Paths checked in order when looking for a human-readable message in an
// error response body.
var errorMessagePaths = []string{
	"error.message",
	"error",
	"message",
	"detail",
	"error.status",
	"errors.0.message",
}

// ClassifiedError is a failed exchange with a backend, normalized to a
// category and a retry decision.
type ClassifiedError struct {
	// StatusCode is zero when no HTTP response was received.
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *ClassifiedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s (status = %d): %s", e.Code, e.StatusCode, e.Message)
}

// RateLimited reports whether the backend rejected the request because of a quota.
func (e *ClassifiedError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Classify turns an HTTP error status and its body into a ClassifiedError.
func Classify(statusCode int, body []byte) *ClassifiedError {
	return &ClassifiedError{
		StatusCode: statusCode,
		Code:       statusCategory(statusCode),
		Message:    errorMessage(statusCode, body),
		Retryable:  IsRetryableStatus(statusCode),
	}
}

// NetworkError classifies a failure where no HTTP response was received.
// Those are retryable unless the caller's context ended. The request URL is
// stripped of its query since some backends take the API key there.
func NetworkError(err error) *ClassifiedError {
	err = RedactURL(err)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{
			Code:    CodeCanceled,
			Message: err.Error(),
		}
	}

	return &ClassifiedError{
		Code:      CodeNetwork,
		Message:   err.Error(),
		Retryable: true,
	}
}

// RedactURL drops the query, fragment and user info from the URL carried by
// a *url.Error.
func RedactURL(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}

	redacted := *uerr
	redacted.URL = "<redacted>"

	if u, parseErr := url.Parse(uerr.URL); parseErr == nil {
		u.User = nil
		u.RawQuery = ""
		u.ForceQuery = false
		u.Fragment = ""
		u.RawFragment = ""
		redacted.URL = u.String()
	}

	return &redacted
}

// IsRetryableStatus reports whether a request that failed with statusCode
// may succeed when sent again.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func statusCategory(statusCode int) string {
	switch {
	case statusCode == http.StatusRequestTimeout:
		return CodeRequestTimeout
	case statusCode == http.StatusTooManyRequests:
		return CodeRateLimited
	case statusCode == http.StatusUnauthorized:
		return CodeUnauthorized
	case statusCode == http.StatusForbidden:
		return CodeForbidden
	case statusCode == http.StatusBadRequest:
		return CodeBadRequest
	case statusCode == http.StatusNotFound:
		return CodeNotFound
	case statusCode >= http.StatusInternalServerError:
		return CodeServerError
	default:
		return CodeClientError
	}
}

func errorMessage(statusCode int, body []byte) string {
	if len(body) > 0 && gjson.ValidBytes(body) {
		for _, path := range errorMessagePaths {
			res := gjson.GetBytes(body, path)
			if res.Type != gjson.String {
				continue
			}

			if msg := strings.TrimSpace(res.String()); msg != "" {
				return shorten(msg)
			}
		}
	}

	if text := http.StatusText(statusCode); text != "" {
		return text
	}

	return fmt.Sprintf("request failed with status %d", statusCode)
}

func shorten(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxMessageLen {
		return msg
	}

	return string(runes[:maxMessageLen]) + "..."
}
