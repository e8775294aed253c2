package webhook

import (
	"math/rand"
	"net/http"
	"time"
)

// Delivery is in-process, so the schedule is short: a notification that has
// not landed within a couple of minutes is dropped and logged.
var retryDelays = [...]time.Duration{
	time.Second,
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
}

const (
	// DefaultMaxAttempts counts the first try plus every retry.
	DefaultMaxAttempts = len(retryDelays) + 1

	// JitterFactor spreads each delay uniformly over ±20%.
	JitterFactor = 0.2
)

// NextRetryDelay is the jittered wait before retry attempt (0-based).
// Attempts beyond the schedule reuse its last step.
func NextRetryDelay(attempt int) time.Duration {
	base := retryDelays[min(max(attempt, 0), len(retryDelays)-1)]
	spread := int64(float64(base) * JitterFactor)
	return base - time.Duration(spread) + time.Duration(rand.Int63n(2*spread+1))
}

func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}

// retryable reports whether another attempt could get a different answer.
// Redirects are never followed and client errors other than 408 and 429 are
// final.
func retryable(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 300 && status < 500:
		return false
	}
	return true
}
