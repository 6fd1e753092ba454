package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket is a single API key's token bucket. Refill is lazy (computed on
// Allow) rather than driven by a per-key goroutine: spec.md §4.12 calls for
// "fill to capacity on each tick", which a lazy check reproduces exactly
// without the overhead of one ticker per key.
type bucket struct {
	capacity   int
	tokens     int
	lastRefill time.Time
}

func (b *bucket) allow(now time.Time, interval time.Duration) bool {
	if now.Sub(b.lastRefill) >= interval {
		b.tokens = b.capacity
		b.lastRefill = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Limiter enforces spec.md §4.12's per-API-key token bucket: capacity =
// the key's configured rateLimit (default DefaultCapacity), refilled to
// capacity every RefillInterval.
type Limiter struct {
	mu             sync.Mutex
	buckets        map[string]*bucket
	refillInterval time.Duration
	idleTTL        time.Duration
	now            func() time.Time

	sweepLog rate.Sometimes
	log      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// LimiterConfig configures a Limiter. Zero values fall back to spec
// defaults.
type LimiterConfig struct {
	RefillInterval time.Duration
	// IdleTTL bounds how long an unused key's bucket is retained before
	// the background sweep evicts it. Defaults to 10x RefillInterval.
	IdleTTL time.Duration
}

// NewLimiter constructs a Limiter. now defaults to time.Now and exists so
// tests can control refill timing deterministically.
func NewLimiter(cfg LimiterConfig, now func() time.Time, logger *slog.Logger) *Limiter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = DefaultRefillInterval
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = interval * 10
	}
	return &Limiter{
		buckets:        make(map[string]*bucket),
		refillInterval: interval,
		idleTTL:        idleTTL,
		now:            now,
		log:            logger,
		// At most once every 30s: sweeps happen constantly but are only
		// interesting to log occasionally.
		sweepLog: rate.Sometimes{Interval: 30 * time.Second},
	}
}

// Allow consumes one token from apiKeyID's bucket, creating it with the
// given capacity (the key's rateLimit, or DefaultCapacity if <= 0) on
// first use. It returns false when the bucket is empty, meaning the
// caller should reject the request as temporarily unavailable.
func (l *Limiter) Allow(apiKeyID string, capacity int) bool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[apiKeyID]
	if !ok {
		b = &bucket{capacity: capacity, tokens: capacity, lastRefill: now}
		l.buckets[apiKeyID] = b
	}
	if b.capacity != capacity {
		b.capacity = capacity
		if b.tokens > capacity {
			b.tokens = capacity
		}
	}
	return b.allow(now, l.refillInterval)
}

// Start launches the background sweep that evicts buckets idle longer
// than IdleTTL, bounding memory for tenants with large, churning API key
// sets. Modeled on pkg/cleanup's Start/Stop/run ticker idiom.
func (l *Limiter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
}

func (l *Limiter) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Limiter) run(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	evicted := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) >= l.idleTTL {
			delete(l.buckets, key)
			evicted++
		}
	}
	remaining := len(l.buckets)
	l.mu.Unlock()

	if evicted > 0 {
		l.sweepLog.Do(func() {
			l.log.Info("ratelimit: evicted idle buckets", "evicted", evicted, "remaining", remaining)
		})
	}
}
