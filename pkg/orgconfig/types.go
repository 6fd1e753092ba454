// Package orgconfig holds the org/plan registries and default-merging
// logic that pkg/ratelimit, pkg/alerts, and pkg/guardrails read from at
// startup and on each rule CRUD call. Registry shape and thread-safety
// are modeled directly on pkg/config's AgentRegistry/ChainRegistry
// pattern (copy-in, copy-out, RWMutex-guarded map).
package orgconfig

import (
	"time"

	"github.com/agentlens/backend/pkg/ratelimit"
)

// OrgPlan is one org's billing plan, the source of truth for
// pkg/ratelimit.Plan.
type OrgPlan struct {
	OrgID                string
	Tier                 ratelimit.PlanTier
	EventQuota           int64
	OverageCapMultiplier float64
}

// RuleDefaults are the system-wide fallback settings applied to a rule
// when its own fields are left at their zero value — e.g. a new alert
// rule created without an explicit cooldown inherits
// DefaultCooldownMinutes.
type RuleDefaults struct {
	EvaluationIntervalSeconds int
	CooldownMinutes           int
	WindowMinutes             int
}

// DefaultRuleDefaults mirrors the spec's stated defaults (60s tick,
// spec.md §4.8/§4.9 leave cooldown/window to the rule author, so these
// are conservative fallbacks rather than named spec constants).
func DefaultRuleDefaults() RuleDefaults {
	return RuleDefaults{
		EvaluationIntervalSeconds: 60,
		CooldownMinutes:           15,
		WindowMinutes:             5,
	}
}

// OrgOverrides lets one org customize RuleDefaults without the caller
// needing to specify every field — MergeDefaults fills in anything left
// zero from the system defaults.
type OrgOverrides struct {
	OrgID        string
	RuleDefaults RuleDefaults
	UpdatedAt    time.Time
}
