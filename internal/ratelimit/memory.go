package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// staleAfter is how long a bucket may sit idle before eviction. A bucket
	// idle this long has refilled anyway, so dropping it changes nothing.
	staleAfter = 10 * time.Minute
	sweepEvery = time.Minute

	// maxRetryAfter caps the advertised wait, including for a zero rate.
	maxRetryAfter = time.Minute
)

// bucket is one key's token balance as of last.
type bucket struct {
	tokens float64
	last   time.Time
}

// take refills the bucket up to now and spends one token if it can.
func (b *bucket) take(now time.Time, rate, burst float64) Decision {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(burst, b.tokens+elapsed*rate)
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int(b.tokens)}
	}
	return Decision{Remaining: 0, RetryAfter: retryAfter(1-b.tokens, rate)}
}

// retryAfter is the time needed to accumulate deficit tokens.
func retryAfter(deficit, rate float64) time.Duration {
	if rate <= 0 {
		return maxRetryAfter
	}
	d := time.Duration(deficit / rate * float64(time.Second))
	return min(d, maxRetryAfter)
}

// MemoryLimiter implements Limiter with one token bucket per key, held in
// process memory. A sweeper goroutine evicts idle buckets.
type MemoryLimiter struct {
	rate  float64 // tokens per second
	burst float64 // bucket capacity
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryLimiter returns a limiter that allows burst requests at once and
// rate requests per second after that. Call Close to stop the sweeper.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	return newMemoryLimiter(rate, burst, time.Now)
}

func newMemoryLimiter(rate float64, burst int, now func() time.Time) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		now:     now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow spends one token from key's bucket. New keys start full.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, last: now}
		m.buckets[key] = b
	}
	return b.take(now, m.rate, m.burst), nil
}

// Close stops the sweeper. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *MemoryLimiter) evictIdle() {
	cutoff := m.now().Add(-staleAfter)

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, b := range m.buckets {
		if b.last.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
