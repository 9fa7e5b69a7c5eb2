// Package ratelimit guards inbound authorization-initiation endpoints with
// fixed-window counting against a shared Redis store.
//
// The limiter deliberately fails open: if the counting store is unreachable
// the request is allowed and a warning is logged. Availability of the
// authorization flow is prioritized over strict limiting.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"tokend/pkg/logging"
)

// Counter is the shared counting store. Incr increments the counter for key,
// setting its TTL to window when the key is created, and returns the count
// after the increment.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter applies fixed-window rate limiting to (clientIdentity, operation)
// pairs. Windows are non-overlapping: the counter resets when the key's TTL
// expires at the window boundary.
type Limiter struct {
	counter     Counter
	maxRequests int64
	window      time.Duration
}

// NewLimiter creates a limiter allowing maxRequests per window per key.
func NewLimiter(counter Counter, maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		counter:     counter,
		maxRequests: int64(maxRequests),
		window:      window,
	}
}

// Allow reports whether a request from clientIdentity for operation may
// proceed. Counter errors are swallowed and logged: the limiter fails open.
func (l *Limiter) Allow(ctx context.Context, clientIdentity, operation string) bool {
	if l == nil || l.counter == nil {
		return true
	}

	key := fmt.Sprintf("ratelimit:%s:%s", clientIdentity, operation)
	count, err := l.counter.Incr(ctx, key, l.window)
	if err != nil {
		logging.Warn("RateLimit", "Counting store error for op=%s, failing open: %v", operation, err)
		return true
	}

	if count > l.maxRequests {
		logging.Debug("RateLimit", "Denied request %d/%d for client=%s op=%s",
			count, l.maxRequests, clientIdentity, operation)
		return false
	}
	return true
}
