// Package cache keeps short-lived answers to "may this user still use the API".
// Token checks run on every authenticated request; caching them keeps the
// users table off the hot path.
package cache

import (
	"context"
	"sync"
	"time"
)

// Lookup reports whether uid exists and is active.
type Lookup func(ctx context.Context, uid uint) (bool, error)

// MemoryVerifier wraps a Lookup with a per-process TTL cache.
type MemoryVerifier struct {
	inner Lookup
	cache map[uint]verifyEntry
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
}

type verifyEntry struct {
	active    bool
	expiresAt time.Time
}

// NewMemoryVerifier wraps inner with caching for ttl.
func NewMemoryVerifier(inner Lookup, ttl time.Duration) *MemoryVerifier {
	return &MemoryVerifier{
		inner: inner,
		cache: make(map[uint]verifyEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Verify returns the cached answer for uid or asks the inner lookup.
// Lookup errors deny access and are not cached.
func (v *MemoryVerifier) Verify(ctx context.Context, uid uint) bool {
	v.mu.RLock()
	entry, ok := v.cache[uid]
	v.mu.RUnlock()
	if ok && v.now().Before(entry.expiresAt) {
		return entry.active
	}

	active, err := v.inner(ctx, uid)
	if err != nil {
		return false
	}

	v.mu.Lock()
	v.cache[uid] = verifyEntry{active: active, expiresAt: v.now().Add(v.ttl)}
	v.mu.Unlock()
	return active
}

// Invalidate removes uid from the cache.
func (v *MemoryVerifier) Invalidate(_ context.Context, uid uint) {
	v.mu.Lock()
	delete(v.cache, uid)
	v.mu.Unlock()
}
