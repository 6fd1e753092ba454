package guardrails

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/ingest"
	"github.com/agentlens/backend/pkg/store"
)

// DefaultEvaluationIntervalSeconds matches pkg/alerts's tick period.
const DefaultEvaluationIntervalSeconds = 60

// AgentMutator is the minimal agent-mutation capability the engine needs —
// spec.md §9's "pass a minimal AgentMutator interface to the guardrail
// engine rather than the whole store" redesign flag. store.EventWriter
// satisfies this automatically.
type AgentMutator interface {
	SetAgentPaused(ctx context.Context, tenantID, agentID string, paused bool) error
	SetAgentModelOverride(ctx context.Context, tenantID, agentID, model string) error
}

// Notifier is the narrow dispatch capability shared with pkg/alerts.
type Notifier interface {
	Notify(ctx context.Context, tenantID string, channels []string, payload map[string]any) error
}

// Ingester is the narrow capability needed to append a log-action event;
// satisfied by *ingest.Pipeline.
type Ingester interface {
	Ingest(ctx context.Context, tenantID string, reqs []ingest.IngestRequest) ([]*eventmodel.Event, error)
}

// Engine runs the guardrail-rule ticker. Unlike pkg/alerts, firing a rule
// here can mutate agent state; a DryRun rule only evaluates and logs what
// it would have done.
type Engine struct {
	rules    RuleStore
	reader   store.EventReader
	agents   AgentMutator
	notifier Notifier
	ingester Ingester
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

type Config struct {
	EvaluationIntervalSeconds int
}

func New(rules RuleStore, reader store.EventReader, agents AgentMutator, notifier Notifier, ingester Ingester, cfg Config, now func() time.Time) *Engine {
	interval := time.Duration(cfg.EvaluationIntervalSeconds) * time.Second
	if cfg.EvaluationIntervalSeconds <= 0 {
		interval = DefaultEvaluationIntervalSeconds * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{rules: rules, reader: reader, agents: agents, notifier: notifier, ingester: ingester, interval: interval, now: now}
}

func (e *Engine) Start(ctx context.Context) {
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx)
	slog.Info("guardrail engine started", "interval", e.interval)
}

func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	slog.Info("guardrail engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick evaluates every enabled rule once; a rule's failure never prevents
// the rest of the tick (mirrors pkg/alerts.Engine.Tick).
func (e *Engine) Tick(ctx context.Context) {
	rules, err := e.rules.ListEnabledRules()
	if err != nil {
		slog.Error("guardrail engine: list rules failed", "error", err)
		return
	}
	for _, r := range rules {
		e.evaluateRule(ctx, r)
	}
}

func (e *Engine) evaluateRule(ctx context.Context, r *Rule) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("guardrail engine: rule evaluation panicked", "rule_id", r.ID, "panic", rec)
		}
	}()

	now := e.now()
	currentValue, err := e.computeCurrentValue(ctx, r, now)
	if err != nil {
		slog.Error("guardrail engine: compute current value failed", "rule_id", r.ID, "error", err)
		return
	}

	st, _ := e.rules.GetState(r.ID)
	if st == nil {
		st = &State{RuleID: r.ID}
	}
	// State updates every tick whether the rule fires or not (spec.md §4.9).
	st.LastEvaluated = now
	st.CurrentValue = currentValue

	onCooldown := r.LastTriggeredAt != nil && r.LastTriggeredAt.Add(time.Duration(r.CooldownMinutes)*time.Minute).After(now)
	fires := currentValue > r.Threshold && !onCooldown

	if fires {
		st.TriggerCount++
		t := now
		st.LastTriggered = &t
	}
	if err := e.rules.UpdateState(st); err != nil {
		slog.Error("guardrail engine: update state failed", "rule_id", r.ID, "error", err)
	}
	if !fires {
		return
	}

	if err := e.rules.SetLastTriggeredAt(r.TenantID, r.ID, now); err != nil {
		slog.Error("guardrail engine: set last triggered failed", "rule_id", r.ID, "error", err)
	}

	if r.DryRun {
		slog.Info("guardrail dry run: action would fire", "rule_id", r.ID, "action", r.Action, "current_value", currentValue)
		e.recordTrigger(r, now)
		return
	}

	if err := e.takeAction(ctx, r, currentValue, now); err != nil {
		slog.Error("guardrail engine: action failed", "rule_id", r.ID, "action", r.Action, "error", err)
	}
	e.recordTrigger(r, now)
}

func (e *Engine) recordTrigger(r *Rule, now time.Time) {
	if err := e.rules.AppendTrigger(r.TenantID, r.ID, &RecentTrigger{TriggeredAt: now, ActionTaken: r.Action, DryRun: r.DryRun}); err != nil {
		slog.Error("guardrail engine: append trigger failed", "rule_id", r.ID, "error", err)
	}
}

func (e *Engine) takeAction(ctx context.Context, r *Rule, currentValue float64, now time.Time) error {
	switch r.Action {
	case ActionPauseAgent:
		return e.agents.SetAgentPaused(ctx, r.TenantID, r.Scope.AgentID, true)
	case ActionDowngradeModel:
		return e.agents.SetAgentModelOverride(ctx, r.TenantID, r.Scope.AgentID, r.DowngradeTo)
	case ActionNotify:
		if e.notifier == nil || len(r.NotifyChannels) == 0 {
			return nil
		}
		return e.notifier.Notify(ctx, r.TenantID, r.NotifyChannels, map[string]any{
			"source": "guardrail_rule", "ruleId": r.ID, "ruleName": r.Name,
			"currentValue": currentValue, "threshold": r.Threshold, "triggeredAt": now,
		})
	case ActionLog:
		return e.logAction(ctx, r, currentValue, now)
	default:
		return fmt.Errorf("guardrails: unknown action %q", r.Action)
	}
}

// logAction appends a specially-marked custom event via the ingest
// pipeline, synthesizing a session id the way the webhook ingest surface
// synthesizes `unlinked_*` ids for sourceless events (spec.md §6).
func (e *Engine) logAction(ctx context.Context, r *Rule, currentValue float64, now time.Time) error {
	if e.ingester == nil {
		return nil
	}
	_, err := e.ingester.Ingest(ctx, r.TenantID, []ingest.IngestRequest{{
		SessionID: "guardrail_" + r.ID,
		AgentID:   r.Scope.AgentID,
		EventType: eventmodel.EventCustom,
		Timestamp: &now,
		Severity:  eventmodel.SeverityWarning,
		Payload: map[string]any{
			"source":       "guardrail_rule",
			"ruleId":       r.ID,
			"ruleName":     r.Name,
			"action":       string(r.Action),
			"currentValue": currentValue,
			"threshold":    r.Threshold,
		},
	}})
	return err
}

func (e *Engine) computeCurrentValue(ctx context.Context, r *Rule, now time.Time) (float64, error) {
	from := now.Add(-time.Duration(r.WindowMinutes) * time.Minute)
	filter := store.EventFilter{AgentID: r.Scope.AgentID, From: &from, To: &now}

	switch r.Condition {
	case ErrorRateExceeds:
		return e.errorRate(ctx, r.TenantID, filter)
	case CostExceeds:
		filter.EventTypes = []eventmodel.EventType{eventmodel.EventCostTracked}
		return e.sumField(ctx, r.TenantID, filter, "costUsd", false)
	case LatencyExceeds:
		filter.EventTypes = []eventmodel.EventType{eventmodel.EventToolResponse}
		return e.sumField(ctx, r.TenantID, filter, "durationMs", true)
	default:
		return 0, fmt.Errorf("guardrails: unknown condition %q", r.Condition)
	}
}

func (e *Engine) errorRate(ctx context.Context, tenantID string, filter store.EventFilter) (float64, error) {
	events, total, err := e.allMatching(ctx, tenantID, filter)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	var bad int
	for _, ev := range events {
		if ev.Severity == eventmodel.SeverityError || ev.Severity == eventmodel.SeverityCritical || ev.EventType == eventmodel.EventToolError {
			bad++
		}
	}
	return float64(bad) / float64(total), nil
}

// sumField sums the named numeric payload field across matches, optionally
// averaging over the match count (used for latency).
func (e *Engine) sumField(ctx context.Context, tenantID string, filter store.EventFilter, field string, average bool) (float64, error) {
	events, total, err := e.allMatching(ctx, tenantID, filter)
	if err != nil {
		return 0, err
	}
	if average && total == 0 {
		return 0, nil
	}
	var sum float64
	for _, ev := range events {
		if v, ok := eventmodel.FloatField(ev.Payload, field); ok {
			sum += v
		}
	}
	if average {
		return sum / float64(total), nil
	}
	return sum, nil
}

const pageSize = 1000

func (e *Engine) allMatching(ctx context.Context, tenantID string, filter store.EventFilter) ([]*eventmodel.Event, int, error) {
	var all []*eventmodel.Event
	offset := 0
	for {
		f := filter
		f.Limit = pageSize
		f.Offset = offset
		page, err := e.reader.QueryEvents(ctx, tenantID, f)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, page.Events...)
		if !page.HasMore || len(page.Events) == 0 {
			return all, page.Total, nil
		}
		offset += len(page.Events)
	}
}
