// Package cache memoizes the base context snapshot shared by every command
// issued within the TTL window. Concurrent misses may each run the underlying
// fetch; the last writer wins and later readers see that entry until it
// expires. A read past the deadline is always a miss, stale data is never
// served silently.
package cache

import (
	"context"
	"sync"
	"time"

	"alphamachine/gateway/internal/domain"
)

const DefaultTTL = 300 * time.Second

// BaseContext is the cacheable part of a snapshot: the ticket workspace plus
// recent documents and the member summaries derived from them.
type BaseContext struct {
	Workspace   domain.WorkspaceContext
	Transcripts []domain.TranscriptRecord
	Members     []domain.MemberSummary
	FetchedAt   time.Time
}

type FetchFunc func(ctx context.Context) (BaseContext, error)

type entry struct {
	base      BaseContext
	expiresAt time.Time
}

type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	entry *entry
}

type Option func(*Cache)

// WithClock substitutes the time source; tests use it to step past the TTL.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBase returns the cached base context, or runs fetch and stores the result
// with expiresAt = fetchedAt + TTL. The fetch runs outside the lock so a slow
// upstream does not serialize unrelated commands; duplicate fetches on a miss
// race are accepted.
func (c *Cache) GetBase(ctx context.Context, fetch FetchFunc) (BaseContext, error) {
	c.mu.Lock()
	if c.entry != nil && c.now().Before(c.entry.expiresAt) {
		base := c.entry.base
		c.mu.Unlock()
		return base, nil
	}
	c.mu.Unlock()

	base, err := fetch(ctx)
	if err != nil {
		return BaseContext{}, err
	}
	if base.FetchedAt.IsZero() {
		base.FetchedAt = c.now()
	}

	c.mu.Lock()
	c.entry = &entry{base: base, expiresAt: base.FetchedAt.Add(c.ttl)}
	c.mu.Unlock()
	return base, nil
}

// Clear drops the current entry; the next GetBase refetches.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}
