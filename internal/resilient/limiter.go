// Package resilient wraps a venue.BrokerClient with rate limiting, a
// circuit breaker, and retry-with-jitter, instrumented with Prometheus
// counters and gauges. It generalizes the token-bucket idiom used by the
// teacher's execution adapters to per-endpoint-class buckets.
package resilient

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a blocking token bucket, refilled by elapsed wall time.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a bucket holding up to burst tokens, refilling at
// ratePerSecond tokens/second.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: ratePerSecond,
		lastRefill: time.Now(),
	}
}

// Acquire blocks until a token is available or ctx is canceled.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - r.tokens) / r.refillRate * float64(time.Second))
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}

// BucketSet is a named collection of RateLimiters, one per endpoint class
// (e.g. "orders", "market_data", "account"), so a burst on one class never
// starves another.
type BucketSet struct {
	mu      sync.Mutex
	buckets map[string]*RateLimiter
	factory func() *RateLimiter
}

// NewBucketSet creates a set whose buckets are lazily created via factory
// on first use of a given class name.
func NewBucketSet(factory func() *RateLimiter) *BucketSet {
	return &BucketSet{buckets: make(map[string]*RateLimiter), factory: factory}
}

// Acquire blocks on the bucket for class, creating it on first use.
func (b *BucketSet) Acquire(ctx context.Context, class string) error {
	b.mu.Lock()
	bucket, ok := b.buckets[class]
	if !ok {
		bucket = b.factory()
		b.buckets[class] = bucket
	}
	b.mu.Unlock()
	return bucket.Acquire(ctx)
}
