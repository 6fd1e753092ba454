package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/store"
)

// DefaultEvaluationIntervalSeconds is spec.md §4.8's tick period.
const DefaultEvaluationIntervalSeconds = 60

// Notifier is the narrow dispatch capability the engine needs from
// pkg/notify.Router — decoupled so the engine's tests don't need a real
// provider stack.
type Notifier interface {
	Notify(ctx context.Context, tenantID string, channels []string, payload map[string]any) error
}

// Engine runs the alert-rule ticker (spec.md §4.8), grounded on the
// teacher's pkg/cleanup.Service start/stop/ticker idiom.
type Engine struct {
	rules    RuleStore
	reader   store.EventReader
	notifier Notifier
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures an Engine; zero value uses defaults.
type Config struct {
	EvaluationIntervalSeconds int
}

// New builds an Engine. now defaults to time.Now if nil (tests may
// inject a fixed clock to make cooldown assertions deterministic).
func New(rules RuleStore, reader store.EventReader, notifier Notifier, cfg Config, now func() time.Time) *Engine {
	interval := time.Duration(cfg.EvaluationIntervalSeconds) * time.Second
	if cfg.EvaluationIntervalSeconds <= 0 {
		interval = DefaultEvaluationIntervalSeconds * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{rules: rules, reader: reader, notifier: notifier, interval: interval, now: now}
}

// Start launches the background evaluation loop.
func (e *Engine) Start(ctx context.Context) {
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx)
	slog.Info("alert engine started", "interval", e.interval)
}

// Stop signals the loop to exit and waits for the current tick to finish.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	slog.Info("alert engine stopped")
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

// Tick evaluates every enabled rule once. A rule's evaluation failure is
// logged and never prevents the remaining rules from running within the
// same tick (spec.md §4.8: "Rules are evaluated independently").
func (e *Engine) Tick(ctx context.Context) {
	rules, err := e.rules.ListEnabledRules()
	if err != nil {
		slog.Error("alert engine: list rules failed", "error", err)
		return
	}
	for _, r := range rules {
		e.evaluateRule(ctx, r)
	}
}

func (e *Engine) evaluateRule(ctx context.Context, r *Rule) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("alert engine: rule evaluation panicked", "rule_id", r.ID, "panic", rec)
		}
	}()

	now := e.now()
	if r.LastTriggeredAt != nil && r.LastTriggeredAt.Add(time.Duration(r.CooldownMinutes)*time.Minute).After(now) {
		return
	}

	currentValue, err := e.computeCurrentValue(ctx, r, now)
	if err != nil {
		slog.Error("alert engine: compute current value failed", "rule_id", r.ID, "rule_type", r.Type, "error", err)
		return
	}
	if currentValue <= r.Threshold {
		return
	}

	if err := e.rules.SetLastTriggeredAt(r.TenantID, r.ID, now); err != nil {
		slog.Error("alert engine: set last triggered failed", "rule_id", r.ID, "error", err)
	}

	row := &HistoryRow{
		TenantID:     r.TenantID,
		RuleID:       r.ID,
		RuleName:     r.Name,
		AgentID:      r.Scope.AgentID,
		Severity:     severityFor(r.Type),
		Title:        r.Name + " exceeded threshold",
		Message:      messageFor(r, currentValue),
		TriggeredAt:  now,
		CurrentValue: currentValue,
		Threshold:    r.Threshold,
		Metadata:     map[string]any{"ruleType": r.Type, "windowMinutes": r.WindowMinutes},
	}
	if err := e.rules.AppendHistory(row); err != nil {
		slog.Error("alert engine: append history failed", "rule_id", r.ID, "error", err)
	}

	payload := map[string]any{
		"source":       "alert_rule",
		"severity":     row.Severity,
		"title":        row.Title,
		"message":      row.Message,
		"ruleId":       r.ID,
		"ruleName":     r.Name,
		"triggeredAt":  now,
		"currentValue": currentValue,
		"threshold":    r.Threshold,
		"metadata":     row.Metadata,
	}
	if e.notifier != nil && len(r.NotifyChannels) > 0 {
		if err := e.notifier.Notify(ctx, r.TenantID, r.NotifyChannels, payload); err != nil {
			slog.Error("alert engine: notify failed", "rule_id", r.ID, "error", err)
		}
	}
}

func severityFor(t RuleType) string {
	if t == ErrorRateExceeds {
		return "critical"
	}
	return "warning"
}

func messageFor(r *Rule, currentValue float64) string {
	return r.Name + " is above its threshold"
}

func (e *Engine) computeCurrentValue(ctx context.Context, r *Rule, now time.Time) (float64, error) {
	from := now.Add(-time.Duration(r.WindowMinutes) * time.Minute)
	filter := store.EventFilter{AgentID: r.Scope.AgentID, From: &from, To: &now, Limit: 0}

	switch r.Type {
	case ErrorRateExceeds:
		return e.errorRate(ctx, r.TenantID, filter)
	case CostExceeds:
		return e.sumCost(ctx, r.TenantID, filter)
	case LatencyExceeds:
		return e.avgLatency(ctx, r.TenantID, filter)
	default:
		return 0, fmt.Errorf("alerts: unknown rule type %q", r.Type)
	}
}

// errorRate and its siblings page through all matching events rather than
// relying on the store to aggregate — EventReader exposes only queryEvents,
// per spec.md §4.8's literal formulae over "events in window".
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

func (e *Engine) sumCost(ctx context.Context, tenantID string, filter store.EventFilter) (float64, error) {
	filter.EventTypes = []eventmodel.EventType{eventmodel.EventCostTracked}
	events, _, err := e.allMatching(ctx, tenantID, filter)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, ev := range events {
		if v, ok := eventmodel.FloatField(ev.Payload, "costUsd"); ok {
			sum += v
		}
	}
	return sum, nil
}

func (e *Engine) avgLatency(ctx context.Context, tenantID string, filter store.EventFilter) (float64, error) {
	filter.EventTypes = []eventmodel.EventType{eventmodel.EventToolResponse}
	events, total, err := e.allMatching(ctx, tenantID, filter)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	var sum float64
	for _, ev := range events {
		if v, ok := eventmodel.FloatField(ev.Payload, "durationMs"); ok {
			sum += v
		}
	}
	return sum / float64(total), nil
}

const pageSize = 1000

// allMatching pages through QueryEvents until it has every row matching
// filter, returning them alongside the true total.
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
