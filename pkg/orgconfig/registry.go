package orgconfig

import (
	"context"
	"errors"
	"sync"
	"time"

	"dario.cat/mergo"

	"github.com/agentlens/backend/pkg/ratelimit"
	"github.com/agentlens/backend/pkg/store"
)

// ErrNotFound is returned when an org has no plan or override on
// record.
var ErrNotFound = errors.New("orgconfig: not found")

// PlanRegistry is the authoritative, in-process source of org plans.
// Shape is modeled on pkg/config's AgentRegistry: a defensive-copying
// constructor plus RWMutex-guarded Get/GetAll/Put accessors returning
// copies so callers can never mutate registry state through a returned
// pointer.
type PlanRegistry struct {
	mu    sync.RWMutex
	plans map[string]*OrgPlan
}

// NewPlanRegistry builds a registry seeded with plans, copying each
// entry so the caller's map/slice cannot be mutated out from under the
// registry afterward.
func NewPlanRegistry(plans map[string]*OrgPlan) *PlanRegistry {
	r := &PlanRegistry{plans: make(map[string]*OrgPlan, len(plans))}
	for orgID, p := range plans {
		cp := *p
		r.plans[orgID] = &cp
	}
	return r
}

// Get returns a copy of orgID's plan, satisfying pkg/ratelimit.PlanStore.
func (r *PlanRegistry) Get(orgID string) (*OrgPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetAll returns a copy of every registered plan.
func (r *PlanRegistry) GetAll() map[string]*OrgPlan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*OrgPlan, len(r.plans))
	for orgID, p := range r.plans {
		cp := *p
		out[orgID] = &cp
	}
	return out
}

// Put inserts or replaces orgID's plan.
func (r *PlanRegistry) Put(p *OrgPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.plans[p.OrgID] = &cp
}

// GetPlan adapts PlanRegistry to pkg/ratelimit.PlanStore, translating
// OrgPlan into the narrower ratelimit.Plan shape that package needs.
func (r *PlanRegistry) GetPlan(orgID string) (*ratelimit.Plan, error) {
	p, err := r.Get(orgID)
	if err != nil {
		return nil, err
	}
	return &ratelimit.Plan{
		OrgID:                p.OrgID,
		Tier:                 p.Tier,
		EventQuota:           p.EventQuota,
		OverageCapMultiplier: p.OverageCapMultiplier,
	}, nil
}

// StoreUsageAdapter adapts a store.EventReader to ratelimit.UsageStore,
// the same narrow-interface-over-a-broader-store pattern PlanRegistry
// uses for PlanStore: spec.md §4.12's SQL fallback path is "count this
// org's events since monthStart", which QueryEvents' Total already
// computes without materializing the page.
type StoreUsageAdapter struct {
	reader store.EventReader
}

// NewStoreUsageAdapter wraps reader for use as a ratelimit.UsageStore.
func NewStoreUsageAdapter(reader store.EventReader) *StoreUsageAdapter {
	return &StoreUsageAdapter{reader: reader}
}

// MonthlyEventCount implements ratelimit.UsageStore.
func (a *StoreUsageAdapter) MonthlyEventCount(orgID string, monthStart time.Time) (int64, error) {
	page, err := a.reader.QueryEvents(context.Background(), orgID, store.EventFilter{
		From:  &monthStart,
		Limit: 1,
	})
	if err != nil {
		return 0, err
	}
	return int64(page.Total), nil
}

// RuleDefaultsRegistry holds each org's RuleDefaults overrides plus the
// system-wide fallback, merging the two with mergo the same way
// pkg/config.Loader merges a tarsy.yaml queue section onto built-in
// queue defaults (mergo.Merge(dst, src, mergo.WithOverride) — non-zero
// src fields win).
type RuleDefaultsRegistry struct {
	mu        sync.RWMutex
	system    RuleDefaults
	overrides map[string]RuleDefaults
}

// NewRuleDefaultsRegistry seeds the registry with systemDefaults and a
// copy of any per-org overrides.
func NewRuleDefaultsRegistry(systemDefaults RuleDefaults, overrides map[string]RuleDefaults) *RuleDefaultsRegistry {
	r := &RuleDefaultsRegistry{
		system:    systemDefaults,
		overrides: make(map[string]RuleDefaults, len(overrides)),
	}
	for orgID, o := range overrides {
		r.overrides[orgID] = o
	}
	return r
}

// SetOverride installs or replaces orgID's RuleDefaults override. Zero
// fields in o are left to fall back to the system default at read time
// — the caller need not know the current system defaults to set a
// partial override.
func (r *RuleDefaultsRegistry) SetOverride(orgID string, o RuleDefaults) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[orgID] = o
}

// Resolve returns orgID's effective RuleDefaults: the system defaults
// with any non-zero override fields applied on top.
func (r *RuleDefaultsRegistry) Resolve(orgID string) (RuleDefaults, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := r.system
	override, ok := r.overrides[orgID]
	if !ok {
		return merged, nil
	}
	if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
		return RuleDefaults{}, err
	}
	return merged, nil
}
