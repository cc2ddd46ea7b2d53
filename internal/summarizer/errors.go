package summarizer

import (
	"errors"

	"feedbrief/internal/transport"
)

var (
	// ErrInvalidConfiguration means the credential, endpoint or model is
	// blank. It is reported before any network call.
	ErrInvalidConfiguration = errors.New("invalid provider configuration")
	// ErrUnknownProvider means the provider name is not in the supported set.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMalformedResponse means the backend answered with a success status
	// but without a usable summary. It is never retried.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRetriesExhausted wraps the last retryable transport failure.
	ErrRetriesExhausted = transport.ErrRetriesExhausted
)

// TransportFailure is the classified HTTP or network failure returned by the
// executor. Use errors.As to reach it.
type TransportFailure = transport.ClassifiedError
