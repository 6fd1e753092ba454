package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// cachedPlan is a short-TTL cache entry holding an org's plan and its
// Redis-or-SQL-derived usage at the time it was fetched.
type cachedPlan struct {
	plan      *Plan
	expiresAt time.Time
}

// QuotaChecker implements spec.md §4.12's monthly quota rule: compare an
// org's current-UTC-month ingested event count to its plan's eventQuota,
// preferring a Redis counter (<1ms) and falling back to an authoritative
// SQL aggregate on a cache miss or Redis error.
type QuotaChecker struct {
	plans PlanStore
	usage UsageStore
	rdb   *redis.Client

	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPlan

	fallbackLog rate.Sometimes
	log         *slog.Logger
}

// QuotaConfig configures a QuotaChecker. Zero values fall back to spec
// defaults.
type QuotaConfig struct {
	CacheTTL time.Duration
}

// NewQuotaChecker constructs a QuotaChecker. rdb may be nil, in which
// case the Redis fast path is skipped and every check goes straight to
// UsageStore.
func NewQuotaChecker(plans PlanStore, usage UsageStore, rdb *redis.Client, cfg QuotaConfig, now func() time.Time, logger *slog.Logger) *QuotaChecker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &QuotaChecker{
		plans:       plans,
		usage:       usage,
		rdb:         rdb,
		cacheTTL:    ttl,
		now:         now,
		cache:       make(map[string]cachedPlan),
		log:         logger,
		fallbackLog: rate.Sometimes{Interval: 10 * time.Second},
	}
}

// Check evaluates orgID's current-month usage against its plan.
func (q *QuotaChecker) Check(ctx context.Context, orgID string) (*QuotaResult, error) {
	plan, err := q.planFor(orgID)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: resolve plan for org %q: %w", orgID, err)
	}

	used, err := q.usageFor(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: resolve usage for org %q: %w", orgID, err)
	}

	return evaluate(plan, used), nil
}

// RecordIngest increments orgID's Redis fast-path counter by n events, so
// subsequent Check calls within the month see the updated count without
// hitting the authoritative store. A nil rdb or an increment error is
// non-fatal: the next Check's cache miss will fall back to UsageStore.
func (q *QuotaChecker) RecordIngest(ctx context.Context, orgID string, n int) {
	if q.rdb == nil || n <= 0 {
		return
	}
	key := redisUsageKey(orgID, q.now())
	pipe := q.rdb.TxPipeline()
	pipe.IncrBy(ctx, key, int64(n))
	pipe.Expire(ctx, key, 32*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Warn("ratelimit: redis usage increment failed", "org", orgID, "error", err)
	}
}

func (q *QuotaChecker) planFor(orgID string) (*Plan, error) {
	now := q.now()

	q.mu.Lock()
	entry, ok := q.cache[orgID]
	q.mu.Unlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.plan, nil
	}

	plan, err := q.plans.GetPlan(orgID)
	if err != nil {
		return nil, err
	}
	if plan.EventQuota <= 0 {
		plan.EventQuota = 0
	}
	if plan.OverageCapMultiplier <= 0 {
		plan.OverageCapMultiplier = DefaultOverageCapMultiplier
	}

	q.mu.Lock()
	q.cache[orgID] = cachedPlan{plan: plan, expiresAt: now.Add(q.cacheTTL)}
	q.mu.Unlock()
	return plan, nil
}

func (q *QuotaChecker) usageFor(ctx context.Context, orgID string) (int64, error) {
	monthStart := startOfUTCMonth(q.now())

	if q.rdb != nil {
		key := redisUsageKey(orgID, q.now())
		n, err := q.rdb.Get(ctx, key).Int64()
		if err == nil {
			return n, nil
		}
		if err != redis.Nil {
			q.fallbackLog.Do(func() {
				q.log.Warn("ratelimit: redis usage fast path unavailable, falling back to SQL", "org", orgID, "error", err)
			})
		}
	}

	return q.usage.MonthlyEventCount(orgID, monthStart)
}

func evaluate(plan *Plan, used int64) *QuotaResult {
	r := &QuotaResult{Used: used, Quota: plan.EventQuota}
	if plan.EventQuota <= 0 {
		r.Status = QuotaOK
		return r
	}

	r.UsagePercent = float64(used) / float64(plan.EventQuota) * 100
	overageCap := int64(float64(plan.EventQuota) * plan.OverageCapMultiplier)
	r.OverageCap = overageCap

	switch {
	case used < int64(float64(plan.EventQuota)*warnThreshold):
		r.Status = QuotaOK
	case used < plan.EventQuota:
		r.Status = QuotaWarning
	case plan.Tier == PlanFree:
		r.Status = QuotaBlocked
	case used < overageCap:
		r.Status = QuotaWarning
	default:
		r.Status = QuotaBlocked
	}
	return r
}

func startOfUTCMonth(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func redisUsageKey(orgID string, now time.Time) string {
	u := now.UTC()
	return fmt.Sprintf("agentlens:quota:%s:%04d-%02d", orgID, u.Year(), u.Month())
}
