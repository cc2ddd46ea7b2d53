package transport

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	generalBaseDelay  = time.Second
	generalMaxDelay   = 4 * time.Second
	generalMultiplier = 2
)

// Free tiers often allow only a handful of requests per minute, so the
// rate-limit schedule waits much longer than plain exponential backoff.
var rateLimitSchedule = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

// Delay returns how long to wait after the given failed attempt (1-based).
func Delay(attempt int, rateLimited bool) time.Duration {
	attempt = max(attempt, 1)

	if rateLimited {
		idx := min(attempt, len(rateLimitSchedule)) - 1

		return rateLimitSchedule[idx]
	}

	bo := newGeneralBackoff()

	var delay time.Duration
	for range attempt {
		delay = bo.NextBackOff()
		if delay >= generalMaxDelay {
			break
		}
	}

	return delay
}

// newGeneralBackoff is a jitter-free exponential policy so that delays are
// exactly 1s, 2s, 4s, 4s...
func newGeneralBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = generalBaseDelay
	bo.MaxInterval = generalMaxDelay
	bo.Multiplier = generalMultiplier
	bo.RandomizationFactor = 0
	bo.Reset()

	return bo
}
