package guardrails

import (
	"context"
	"testing"
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/ingest"
	"github.com/agentlens/backend/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct{ calls int }

func (f *fakeNotifier) Notify(ctx context.Context, tenantID string, channels []string, payload map[string]any) error {
	f.calls++
	return nil
}

func seedCritical(t *testing.T, s *store.MemoryStore, tenantID, sessionID, agentID string) {
	t.Helper()
	require.NoError(t, s.InsertEvents(context.Background(), tenantID, []*eventmodel.Event{{
		ID: sessionID + "-1", SessionID: sessionID, AgentID: agentID, TenantID: tenantID,
		EventType: eventmodel.EventError, Severity: eventmodel.SeverityCritical,
		Timestamp: time.Now(), Payload: map[string]any{},
	}}))
}

func TestEngine_PauseAgentActionMutatesAgentState(t *testing.T) {
	s := store.NewMemoryStore()
	seedCritical(t, s, "t1", "s1", "agent-1")
	require.NoError(t, s.InsertEvents(context.Background(), "t1", []*eventmodel.Event{{
		ID: "seed", SessionID: "s1", AgentID: "agent-1", TenantID: "t1",
		EventType: eventmodel.EventSessionStarted, Severity: eventmodel.SeverityInfo,
		Timestamp: time.Now().Add(-time.Minute), Payload: map[string]any{},
	}}))

	rules := NewMemoryRuleStore()
	rules.Put(&Rule{TenantID: "t1", Name: "pause on errors", Enabled: true, Condition: ErrorRateExceeds,
		Scope: Scope{AgentID: "agent-1"}, WindowMinutes: 60, Threshold: 0, CooldownMinutes: 30, Action: ActionPauseAgent})

	e := New(rules, s, s, nil, nil, Config{}, nil)
	e.Tick(context.Background())

	agent, err := s.GetAgent(context.Background(), "t1", "agent-1")
	require.NoError(t, err)
	assert.True(t, agent.Paused)
}

func TestEngine_DryRunNeverMutatesOrNotifies(t *testing.T) {
	s := store.NewMemoryStore()
	seedCritical(t, s, "t1", "s1", "agent-1")

	rules := NewMemoryRuleStore()
	rules.Put(&Rule{TenantID: "t1", Name: "dry run pause", Enabled: true, DryRun: true, Condition: ErrorRateExceeds,
		Scope: Scope{AgentID: "agent-1"}, WindowMinutes: 60, Threshold: 0, CooldownMinutes: 30,
		Action: ActionPauseAgent})

	notifier := &fakeNotifier{}
	e := New(rules, s, s, notifier, nil, Config{}, nil)
	e.Tick(context.Background())

	agent, err := s.GetAgent(context.Background(), "t1", "agent-1")
	require.NoError(t, err)
	assert.False(t, agent.Paused, "dry run must never mutate agent state")
	assert.Zero(t, notifier.calls)

	triggers := rules.RecentTriggers(rules.mustOnlyRuleID(t))
	require.Len(t, triggers, 1)
	assert.True(t, triggers[0].DryRun)
}

func (s *MemoryRuleStore) mustOnlyRuleID(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.rules, 1)
	for id := range s.rules {
		return id
	}
	return ""
}

func TestEngine_StateUpdatedEveryTickEvenWhenNotFiring(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.InsertEvents(context.Background(), "t1", []*eventmodel.Event{{
		ID: "s1-1", SessionID: "s1", AgentID: "agent-1", TenantID: "t1",
		EventType: eventmodel.EventToolCall, Severity: eventmodel.SeverityInfo,
		Timestamp: time.Now(), Payload: map[string]any{},
	}}))

	rules := NewMemoryRuleStore()
	r := rules.Put(&Rule{TenantID: "t1", Name: "never fires", Enabled: true, Condition: ErrorRateExceeds,
		Scope: Scope{AgentID: "agent-1"}, WindowMinutes: 60, Threshold: 0.9, CooldownMinutes: 30, Action: ActionPauseAgent})

	e := New(rules, s, s, nil, nil, Config{}, nil)
	e.Tick(context.Background())

	st, ok := rules.GetState(r.ID)
	require.True(t, ok)
	assert.Equal(t, 0, st.TriggerCount)
	assert.False(t, st.LastEvaluated.IsZero())
}

func TestEngine_LogActionAppendsCustomEventViaIngester(t *testing.T) {
	s := store.NewMemoryStore()
	seedCritical(t, s, "t1", "s1", "agent-1")

	rules := NewMemoryRuleStore()
	rules.Put(&Rule{TenantID: "t1", Name: "log on errors", Enabled: true, Condition: ErrorRateExceeds,
		Scope: Scope{AgentID: "agent-1"}, WindowMinutes: 60, Threshold: 0, CooldownMinutes: 30, Action: ActionLog})

	pipeline := ingest.New(s, nil, ingest.SideEffects{})
	e := New(rules, s, s, nil, pipeline, Config{}, nil)
	e.Tick(context.Background())

	timeline, err := s.GetSessionTimeline(context.Background(), "t1", "guardrail_"+mustOnlyRule(t, rules).ID)
	require.NoError(t, err)
	require.Len(t, timeline.Events, 1)
	assert.Equal(t, eventmodel.EventCustom, timeline.Events[0].EventType)
}

func mustOnlyRule(t *testing.T, rules *MemoryRuleStore) *Rule {
	t.Helper()
	all, err := rules.ListEnabledRules()
	require.NoError(t, err)
	require.Len(t, all, 1)
	return all[0]
}
