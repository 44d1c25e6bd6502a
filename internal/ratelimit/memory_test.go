package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, rate float64, burst int) (*MemoryLimiter, *manualClock) {
	t.Helper()
	clk := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := newMemoryLimiter(rate, burst, clk.Now)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m, clk
}

func allowed(t *testing.T, m *MemoryLimiter, key string) bool {
	t.Helper()
	d, err := m.Allow(context.Background(), key)
	require.NoError(t, err)
	return d.Allowed
}

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	m, _ := newTestLimiter(t, 10, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, allowed(t, m, "client:a"), "request %d within burst", i)
	}
	assert.False(t, allowed(t, m, "client:a"))
}

func TestMemoryLimiter_RemainingAndRetryAfter(t *testing.T) {
	m, _ := newTestLimiter(t, 4, 2)
	ctx := context.Background()

	d, err := m.Allow(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 1}, d)

	d, _ = m.Allow(ctx, "k")
	assert.Equal(t, Decision{Allowed: true, Remaining: 0}, d)

	d, _ = m.Allow(ctx, "k")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 250*time.Millisecond, d.RetryAfter, "one token at 4 rps")
}

func TestMemoryLimiter_ZeroRateCapsRetryAfter(t *testing.T) {
	m, _ := newTestLimiter(t, 0, 1)
	assert.True(t, allowed(t, m, "k"))
	d, _ := m.Allow(context.Background(), "k")
	assert.False(t, d.Allowed)
	assert.Equal(t, maxRetryAfter, d.RetryAfter)
}

func TestMemoryLimiter_Refill(t *testing.T) {
	m, clk := newTestLimiter(t, 2, 1)

	assert.True(t, allowed(t, m, "k"))
	assert.False(t, allowed(t, m, "k"))

	clk.Advance(500 * time.Millisecond)
	assert.True(t, allowed(t, m, "k"), "one token refilled after half a second at 2 rps")
}

func TestMemoryLimiter_IndependentKeys(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 1)
	assert.True(t, allowed(t, m, "a"))
	assert.True(t, allowed(t, m, "b"))
	assert.False(t, allowed(t, m, "a"))
}

func TestMemoryLimiter_TokensCapAtBurst(t *testing.T) {
	m, clk := newTestLimiter(t, 1000, 3)
	allowed(t, m, "k")

	clk.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, allowed(t, m, "k"))
	}
	assert.False(t, allowed(t, m, "k"))
}

func TestMemoryLimiter_EvictIdle(t *testing.T) {
	m, clk := newTestLimiter(t, 10, 5)
	allowed(t, m, "stale")
	clk.Advance(staleAfter + time.Minute)
	allowed(t, m, "recent")

	m.evictIdle()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotContains(t, m.buckets, "stale")
	assert.Contains(t, m.buckets, "recent")
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	m, _ := newTestLimiter(t, 0, 50)
	ctx := context.Background()

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := m.Allow(ctx, "shared"); d.Allowed {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), granted.Load())
}

func TestMemoryLimiter_CloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestNoopLimiter(t *testing.T) {
	var l NoopLimiter
	for i := 0; i < 100; i++ {
		d, err := l.Allow(context.Background(), "anything")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, -1, d.Remaining)
	}
	assert.NoError(t, l.Close())
}
