package replay

import (
	"context"
	"testing"
	"time"

	"github.com/agentlens/backend/pkg/alerts"
	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSession(t *testing.T, s *store.MemoryStore, tenantID, sessionID, agentID string) {
	t.Helper()
	require.NoError(t, s.InsertEvents(context.Background(), tenantID, []*eventmodel.Event{{
		ID: sessionID + "-1", SessionID: sessionID, AgentID: agentID, TenantID: tenantID,
		EventType: eventmodel.EventSessionStarted, Severity: eventmodel.SeverityInfo,
		Timestamp: time.Now(), Payload: map[string]any{},
	}, {
		ID: sessionID + "-2", SessionID: sessionID, AgentID: agentID, TenantID: tenantID,
		EventType: eventmodel.EventToolCall, Severity: eventmodel.SeverityInfo,
		Timestamp: time.Now(), Payload: map[string]any{},
	}}))
}

func TestReconstruct_BundlesTimelineAgentStateAndAlertHistory(t *testing.T) {
	s := store.NewMemoryStore()
	seedSession(t, s, "t1", "sess-1", "agent-1")
	require.NoError(t, s.SetAgentPaused(context.Background(), "t1", "agent-1", true))

	rules := alerts.NewMemoryRuleStore()
	require.NoError(t, rules.AppendHistory(&alerts.HistoryRow{TenantID: "t1", RuleID: "r1", AgentID: "agent-1", Message: "cost high"}))
	require.NoError(t, rules.AppendHistory(&alerts.HistoryRow{TenantID: "t1", RuleID: "r2", AgentID: "other-agent", Message: "unrelated"}))
	require.NoError(t, rules.AppendHistory(&alerts.HistoryRow{TenantID: "t1", RuleID: "r3", AgentID: "", Message: "tenant-wide"}))

	rc := New(s, rules)
	snap, err := rc.Reconstruct(context.Background(), "t1", "sess-1")
	require.NoError(t, err)

	assert.Len(t, snap.Timeline, 2)
	assert.True(t, snap.ChainValid)
	assert.True(t, snap.Agent.Paused)
	require.Len(t, snap.AlertHistory, 2, "should include the agent-scoped row and the tenant-wide row, not the other agent's row")
}

func TestReconstruct_NilAlertHistoryReaderYieldsNoHistory(t *testing.T) {
	s := store.NewMemoryStore()
	seedSession(t, s, "t1", "sess-1", "agent-1")

	rc := New(s, nil)
	snap, err := rc.Reconstruct(context.Background(), "t1", "sess-1")
	require.NoError(t, err)
	assert.Empty(t, snap.AlertHistory)
}

func TestReconstruct_UnknownSessionReturnsError(t *testing.T) {
	s := store.NewMemoryStore()
	rc := New(s, nil)
	_, err := rc.Reconstruct(context.Background(), "t1", "missing")
	assert.Error(t, err)
}
