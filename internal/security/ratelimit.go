package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit bucket kinds.
const (
	KindAuth    = "auth"
	KindTrigger = "trigger"
)

// RateLimitConfig holds per-minute limits for the HTTP trigger surface.
type RateLimitConfig struct {
	// AuthPerMin bounds authentication attempts, successful or not.
	AuthPerMin int `yaml:"auth_per_min"`

	// TriggersPerMin bounds accepted job triggers across all jobs.
	TriggersPerMin int `yaml:"triggers_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		AuthPerMin:     60,
		TriggersPerMin: 30,
	}
}

// RateLimiter implements sliding window rate limiting.
// Each bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.AuthPerMin <= 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}
	if cfg.TriggersPerMin <= 0 {
		cfg.TriggersPerMin = defaults.TriggersPerMin
	}

	return &RateLimiter{
		now: time.Now,
		buckets: map[string]*bucket{
			KindAuth:    {window: time.Minute, limit: cfg.AuthPerMin},
			KindTrigger: {window: time.Minute, limit: cfg.TriggersPerMin},
		},
	}
}

// Allow records an event of the given kind if the limit permits it.
// Unknown kinds are never limited.
func (rl *RateLimiter) Allow(kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}

	b.events = append(b.events, now)
	return nil
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
