// Package ratelimit throttles API clients with per-key token buckets.
//
// MemoryLimiter keeps the buckets in process. Anything shared across
// replicas implements Limiter.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed bool
	// Remaining is the number of whole requests left in the bucket, or -1
	// when the limiter does not track it.
	Remaining int
	// RetryAfter is the wait until the next request would be allowed.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one request for key. The key is opaque; callers build
	// it (e.g. "client:<id>"). An error means the limiter itself failed and
	// callers fail open.
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases background goroutines and connections.
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always permits.
func (NoopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true, Remaining: -1}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
