package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

type countingLookup struct {
	calls  atomic.Int32
	active map[uint]bool
	err    error
}

func (c *countingLookup) lookup(_ context.Context, uid uint) (bool, error) {
	c.calls.Add(1)
	if c.err != nil {
		return false, c.err
	}
	return c.active[uid], nil
}

func TestMemoryVerifier_CachesUntilExpiry(t *testing.T) {
	l := &countingLookup{active: map[uint]bool{1: true}}
	v := NewMemoryVerifier(l.lookup, time.Minute)
	now := time.Now()
	v.now = func() time.Time { return now }

	for range 3 {
		if !v.Verify(context.Background(), 1) {
			t.Fatal("expected user 1 to be active")
		}
	}
	if l.calls.Load() != 1 {
		t.Fatalf("expected one lookup, got %d", l.calls.Load())
	}

	now = now.Add(2 * time.Minute)
	v.Verify(context.Background(), 1)
	if l.calls.Load() != 2 {
		t.Fatalf("expected refresh after expiry, got %d lookups", l.calls.Load())
	}
}

func TestMemoryVerifier_CachesNegativeAndInvalidates(t *testing.T) {
	l := &countingLookup{active: map[uint]bool{}}
	v := NewMemoryVerifier(l.lookup, time.Minute)

	if v.Verify(context.Background(), 2) {
		t.Fatal("unknown user must be rejected")
	}
	l.active[2] = true
	if v.Verify(context.Background(), 2) {
		t.Fatal("negative answer should still be cached")
	}
	v.Invalidate(context.Background(), 2)
	if !v.Verify(context.Background(), 2) {
		t.Fatal("expected fresh lookup after invalidation")
	}
}

func TestMemoryVerifier_ErrorsAreNotCached(t *testing.T) {
	l := &countingLookup{err: errors.New("db down")}
	v := NewMemoryVerifier(l.lookup, time.Minute)
	if v.Verify(context.Background(), 1) {
		t.Fatal("lookup error must deny")
	}
	l.err = nil
	l.active = map[uint]bool{1: true}
	if !v.Verify(context.Background(), 1) {
		t.Fatal("expected retry after error")
	}
}

func TestRedisVerifier(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	l := &countingLookup{active: map[uint]bool{4: true}}
	v := NewRedisVerifier(l.lookup, rdb, time.Minute, zerolog.Nop())
	ctx := context.Background()

	if !v.Verify(ctx, 4) || !v.Verify(ctx, 4) {
		t.Fatal("expected user 4 to be active")
	}
	if l.calls.Load() != 1 {
		t.Fatalf("expected one lookup, got %d", l.calls.Load())
	}
	if got, _ := mr.Get(redisKey(4)); got != "1" {
		t.Fatalf("expected cached flag 1, got %q", got)
	}
	if v.Verify(ctx, 5) {
		t.Fatal("unknown user must be rejected")
	}
	if got, _ := mr.Get(redisKey(5)); got != "0" {
		t.Fatalf("expected cached flag 0, got %q", got)
	}

	v.Invalidate(ctx, 4)
	if mr.Exists(redisKey(4)) {
		t.Fatal("expected key removed")
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists(redisKey(5)) {
		t.Fatal("expected key to expire with ttl")
	}
}

func TestRedisVerifier_FallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	l := &countingLookup{active: map[uint]bool{1: true}}
	v := NewRedisVerifier(l.lookup, rdb, time.Minute, zerolog.Nop())
	if !v.Verify(context.Background(), 1) {
		t.Fatal("expected inner lookup to answer when redis is unavailable")
	}
}
