// Package ratelimit implements spec.md §4.12: a per-API-key token bucket
// and a per-org monthly event quota, backed by a Redis fast path with a
// SQL fallback.
package ratelimit

import "time"

const (
	// DefaultCapacity is the token bucket capacity used when an API key
	// has no explicit rateLimit.
	DefaultCapacity = 100
	// DefaultRefillInterval is how often a bucket is filled back to
	// capacity.
	DefaultRefillInterval = 60 * time.Second
	// DefaultCacheTTL is how long org plan/quota info is cached before a
	// fresh lookup is required.
	DefaultCacheTTL = 60 * time.Second
	// DefaultOverageCapMultiplier bounds paid-plan overage usage as a
	// multiple of the plan's quota.
	DefaultOverageCapMultiplier = 2.0
	// warnThreshold is the usage fraction at which quota checks start
	// returning a warning instead of ok.
	warnThreshold = 0.8
)

// PlanTier distinguishes free plans (hard-blocked at quota) from paid
// plans (allowed to run over quota up to a cap).
type PlanTier string

const (
	PlanFree PlanTier = "free"
	PlanPaid PlanTier = "paid"
)

// Plan is the subset of an org's billing plan the quota checker needs.
type Plan struct {
	OrgID                string
	Tier                 PlanTier
	EventQuota           int64
	OverageCapMultiplier float64
}

// QuotaStatus is the outcome of a CheckQuota call.
type QuotaStatus string

const (
	QuotaOK      QuotaStatus = "ok"
	QuotaWarning QuotaStatus = "warning"
	QuotaBlocked QuotaStatus = "blocked"
)

// QuotaResult reports the outcome of evaluating an org's monthly quota.
type QuotaResult struct {
	Status       QuotaStatus
	UsagePercent float64
	Used         int64
	Quota        int64
	OverageCap   int64
}

// PlanStore resolves an org's billing plan. Implementations typically
// read from the same relational store as the rest of the system.
type PlanStore interface {
	GetPlan(orgID string) (*Plan, error)
}

// UsageStore is the authoritative (SQL) source of an org's current
// month usage, consulted when the Redis fast path misses or errors.
type UsageStore interface {
	// MonthlyEventCount sums events ingested for orgID since monthStart
	// (inclusive), a UTC midnight on the 1st of the current month.
	MonthlyEventCount(orgID string, monthStart time.Time) (int64, error)
}
