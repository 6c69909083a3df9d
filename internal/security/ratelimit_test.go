package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{AuthPerMin: 5})

	for i := range 5 {
		if err := rl.Allow(KindAuth); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}

	if err := rl.Allow(KindAuth); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{TriggersPerMin: 2})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(KindTrigger)
	_ = rl.Allow(KindTrigger)

	if err := rl.Allow(KindTrigger); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	now = now.Add(61 * time.Second)

	if err := rl.Allow(KindTrigger); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_BucketsAreIndependent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{AuthPerMin: 1, TriggersPerMin: 1})
	if err := rl.Allow(KindAuth); err != nil {
		t.Fatal(err)
	}
	if err := rl.Allow(KindTrigger); err != nil {
		t.Fatalf("trigger bucket should not share the auth budget: %v", err)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for range 1000 {
		if err := rl.Allow("unknown_kind"); err != nil {
			t.Fatalf("expected nil for unknown kind, got %v", err)
		}
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	if got := rl.buckets[KindAuth].limit; got != 60 {
		t.Errorf("auth limit = %d, want 60", got)
	}
	if got := rl.buckets[KindTrigger].limit; got != 30 {
		t.Errorf("trigger limit = %d, want 30", got)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{AuthPerMin: 1000})
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rl.Allow(KindAuth)
		}()
	}
	wg.Wait()

	if got := len(rl.buckets[KindAuth].events); got != 100 {
		t.Errorf("events = %d, want 100", got)
	}
}
