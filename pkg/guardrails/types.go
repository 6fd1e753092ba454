// Package guardrails implements C10: the same periodic-evaluation pattern
// as pkg/alerts, but rule actions mutate agent state (pause, model
// override) rather than only notifying (spec.md §4.9).
package guardrails

import "time"

// ConditionType mirrors alerts.RuleType's three computations; kept as its
// own enum rather than importing pkg/alerts so guardrails stays free to
// diverge (e.g. gain new condition types) without coupling the packages.
type ConditionType string

const (
	ErrorRateExceeds ConditionType = "error_rate_exceeds"
	CostExceeds      ConditionType = "cost_exceeds"
	LatencyExceeds   ConditionType = "latency_exceeds"
)

// ActionType is the closed set of mutating/non-mutating actions a
// guardrail rule can take when it fires.
type ActionType string

const (
	ActionPauseAgent     ActionType = "pause_agent"
	ActionDowngradeModel ActionType = "downgrade_model"
	ActionNotify         ActionType = "notify"
	ActionLog            ActionType = "log"
)

// Scope narrows which agent(s) a rule evaluates over.
type Scope struct {
	AgentID string
}

// Rule is one guardrail definition.
type Rule struct {
	ID              string
	TenantID        string
	Name            string
	Enabled         bool
	DryRun          bool
	Condition       ConditionType
	Scope           Scope
	WindowMinutes   int
	Threshold       float64
	CooldownMinutes int
	Action          ActionType
	DowngradeTo     string // model name, only used when Action == ActionDowngradeModel
	NotifyChannels  []string

	LastTriggeredAt *time.Time
}

// State is the per-rule evaluation state updated on every tick regardless
// of whether the rule fires (spec.md §4.9).
type State struct {
	RuleID        string
	TriggerCount  int
	LastTriggered *time.Time
	LastEvaluated time.Time
	CurrentValue  float64
}

// RecentTrigger is one historical firing, surfaced by the status endpoint.
type RecentTrigger struct {
	TriggeredAt time.Time
	ActionTaken ActionType
	DryRun      bool
}

// RuleStore persists rules, per-rule state, and recent-trigger history.
type RuleStore interface {
	ListEnabledRules() ([]*Rule, error)
	SetLastTriggeredAt(tenantID, ruleID string, at time.Time) error
	UpdateState(st *State) error
	AppendTrigger(tenantID, ruleID string, t *RecentTrigger) error
	GetState(ruleID string) (*State, bool)
}
