// Package reportcache holds recent evaluation reports in memory so callers
// can fetch a report by message ID after the evaluation returned. Entries
// expire after a TTL and the cache never grows past a fixed size.
package reportcache

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rolecraft/turneval/internal/model"
)

// ErrNotFound is returned when no live report exists for a message ID.
var ErrNotFound = errors.New("reportcache: report not found")

// Cache is a TTL-bounded, size-bounded report store keyed by message ID.
// A newer report for the same message replaces the older one.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]cachedEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	done       chan struct{}
	closeOnce  sync.Once
}

type cachedEntry struct {
	report    model.EvaluationReport
	storedAt  time.Time
	expiresAt time.Time
}

// New creates a cache with the given TTL and capacity. A non-positive
// maxEntries means unbounded. Call Close to stop the background eviction
// goroutine.
func New(ttl time.Duration, maxEntries int) *Cache {
	c := &Cache{
		entries:    make(map[string]cachedEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// Get returns the cached report for messageID.
func (c *Cache) Get(messageID string) (model.EvaluationReport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[messageID]
	if !ok || c.now().After(entry.expiresAt) {
		return model.EvaluationReport{}, ErrNotFound
	}
	return entry.report, nil
}

// Put stores a report under its message ID, evicting the oldest entry when
// the cache is full.
func (c *Cache) Put(r model.EvaluationReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[r.MessageID]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[r.MessageID] = cachedEntry{
		report:    r,
		storedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
}

// Recent returns up to limit live reports, newest first. A non-positive
// limit returns all of them.
func (c *Cache) Recent(limit int) []model.EvaluationReport {
	c.mu.RLock()
	now := c.now()
	live := make([]cachedEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if !now.After(e.expiresAt) {
			live = append(live, e)
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(live, func(a, b cachedEntry) int {
		return b.storedAt.Compare(a.storedAt)
	})
	if limit > 0 && len(live) > limit {
		live = live[:limit]
	}
	out := make([]model.EvaluationReport, len(live))
	for i, e := range live {
		out[i] = e.report
	}
	return out
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background eviction goroutine. It is safe to call twice.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// evictLoop removes expired entries every minute.
func (c *Cache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, v := range c.entries {
		if oldestKey == "" || v.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, v.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
