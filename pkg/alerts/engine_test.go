package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	calls []map[string]any
}

func (f *fakeNotifier) Notify(ctx context.Context, tenantID string, channels []string, payload map[string]any) error {
	f.calls = append(f.calls, payload)
	return nil
}

func seedCriticalEvent(t *testing.T, s *store.MemoryStore, tenantID, sessionID string) {
	t.Helper()
	err := s.InsertEvents(context.Background(), tenantID, []*eventmodel.Event{{
		ID: sessionID + "-1", SessionID: sessionID, AgentID: "agent-1", TenantID: tenantID,
		EventType: eventmodel.EventError, Severity: eventmodel.SeverityCritical,
		Timestamp: time.Now(), Payload: map[string]any{},
	}})
	require.NoError(t, err)
}

func TestEngine_TriggersWhenThresholdExceeded(t *testing.T) {
	s := store.NewMemoryStore()
	seedCriticalEvent(t, s, "t1", "s1")

	rules := NewMemoryRuleStore()
	rules.Put(&Rule{TenantID: "t1", Name: "error spike", Enabled: true, Type: ErrorRateExceeds,
		WindowMinutes: 60, Threshold: 0, CooldownMinutes: 30, NotifyChannels: []string{"ch1"}})

	notifier := &fakeNotifier{}
	e := New(rules, s, notifier, Config{}, nil)
	e.Tick(context.Background())

	history := rules.History()
	require.Len(t, history, 1)
	assert.Equal(t, "t1", history[0].TenantID)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "alert_rule", notifier.calls[0]["source"])
}

func TestEngine_CooldownSuppressesSecondTrigger(t *testing.T) {
	s := store.NewMemoryStore()
	seedCriticalEvent(t, s, "t1", "s1")

	rules := NewMemoryRuleStore()
	rules.Put(&Rule{TenantID: "t1", Name: "error spike", Enabled: true, Type: ErrorRateExceeds,
		WindowMinutes: 60, Threshold: 0, CooldownMinutes: 30})

	fixedNow := time.Now()
	clock := fixedNow
	e := New(rules, s, &fakeNotifier{}, Config{}, func() time.Time { return clock })

	e.Tick(context.Background())
	require.Len(t, rules.History(), 1)

	clock = clock.Add(5 * time.Minute)
	e.Tick(context.Background())
	assert.Len(t, rules.History(), 1, "second tick within cooldown must not add a row")

	clock = clock.Add(26 * time.Minute)
	e.Tick(context.Background())
	assert.Len(t, rules.History(), 2, "tick after cooldown elapses should fire again")
}

func TestEngine_DoesNotTriggerBelowThreshold(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.InsertEvents(context.Background(), "t1", []*eventmodel.Event{{
		ID: "s1-1", SessionID: "s1", AgentID: "a1", TenantID: "t1",
		EventType: eventmodel.EventToolCall, Severity: eventmodel.SeverityInfo,
		Timestamp: time.Now(), Payload: map[string]any{},
	}}))

	rules := NewMemoryRuleStore()
	rules.Put(&Rule{TenantID: "t1", Name: "error spike", Enabled: true, Type: ErrorRateExceeds,
		WindowMinutes: 60, Threshold: 0.5, CooldownMinutes: 30})

	notifier := &fakeNotifier{}
	e := New(rules, s, notifier, Config{}, nil)
	e.Tick(context.Background())

	assert.Empty(t, rules.History())
	assert.Empty(t, notifier.calls)
}

func TestEngine_CostExceedsSumsCostTrackedEvents(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.InsertEvents(context.Background(), "t1", []*eventmodel.Event{
		{ID: "s1-1", SessionID: "s1", AgentID: "a1", TenantID: "t1", EventType: eventmodel.EventCostTracked,
			Severity: eventmodel.SeverityInfo, Timestamp: time.Now(), Payload: map[string]any{"costUsd": 6.0}},
		{ID: "s1-2", SessionID: "s1", AgentID: "a1", TenantID: "t1", EventType: eventmodel.EventCostTracked,
			Severity: eventmodel.SeverityInfo, Timestamp: time.Now(), Payload: map[string]any{"costUsd": 5.0}},
	}))

	rules := NewMemoryRuleStore()
	rules.Put(&Rule{TenantID: "t1", Name: "cost spike", Enabled: true, Type: CostExceeds,
		WindowMinutes: 60, Threshold: 10, CooldownMinutes: 30})

	e := New(rules, s, &fakeNotifier{}, Config{}, nil)
	e.Tick(context.Background())

	assert.Len(t, rules.History(), 1)
}

func TestEngine_OneRuleFailureDoesNotBlockOthers(t *testing.T) {
	s := store.NewMemoryStore()
	seedCriticalEvent(t, s, "t1", "s1")

	rules := NewMemoryRuleStore()
	rules.Put(&Rule{TenantID: "t1", Name: "bad rule", Enabled: true, Type: RuleType("unknown_type"), Threshold: -1, WindowMinutes: 60})
	rules.Put(&Rule{TenantID: "t1", Name: "error spike", Enabled: true, Type: ErrorRateExceeds, WindowMinutes: 60, Threshold: 0})

	e := New(rules, s, &fakeNotifier{}, Config{}, nil)
	e.Tick(context.Background())

	assert.Len(t, rules.History(), 1, "the valid rule should still fire despite the unknown-type rule")
}
