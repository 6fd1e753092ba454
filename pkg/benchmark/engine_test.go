package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedSessionWithCost inserts a cost_tracked event so the session's
// aggregate TotalCostUsd reflects costUsd, then tags the session for a
// benchmark variant.
func seedSessionWithCost(t *testing.T, s *store.MemoryStore, tenantID, sessionID, agentID string, costUsd float64, tag string) {
	t.Helper()
	require.NoError(t, s.InsertEvents(context.Background(), tenantID, []*eventmodel.Event{{
		ID: sessionID + "-1", SessionID: sessionID, AgentID: agentID, TenantID: tenantID,
		EventType: eventmodel.EventCostTracked, Severity: eventmodel.SeverityInfo,
		Timestamp: time.Now(), Payload: map[string]any{"costUsd": costUsd},
	}}))
	s.AddTags(tenantID, sessionID, tag)
}

func TestEngine_Compute_DeclaresCostWinnerWithLowPValue(t *testing.T) {
	s := store.NewMemoryStore()
	for i := 0; i < 40; i++ {
		// Variant A costs cluster around 0.10, variant B around 0.05 — a
		// clean separation large enough for Welch's t-test to reject at
		// p<0.001 with n=40 per arm (mirrors spec.md's S3 scenario).
		costA := 0.10 + 0.001*float64(i%5-2)
		costB := 0.05 + 0.001*float64(i%5-2)
		seedSessionWithCost(t, s, "t1", fmt.Sprintf("a-%d", i), "agent-1", costA, "v-A")
		seedSessionWithCost(t, s, "t1", fmt.Sprintf("b-%d", i), "agent-1", costB, "v-B")
	}

	e := New(s)
	b := &Benchmark{TenantID: "t1", Variants: []Variant{{Name: "A", Tag: "v-A"}, {Name: "B", Tag: "v-B"}}, Metrics: []MetricName{MetricAvgCost}}
	result, err := e.Compute(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, result.Metrics, 1)
	require.Len(t, result.Metrics[0].Comparisons, 1)

	cmp := result.Metrics[0].Comparisons[0]
	assert.Equal(t, "B", cmp.Winner)
	assert.Less(t, cmp.PValue, 0.001)
	assert.Equal(t, "★★★", cmp.Stars)
	assert.Contains(t, result.Summary, "outperforms")
}

func TestEngine_Compute_FlagsInsufficientDataUnder30Sessions(t *testing.T) {
	s := store.NewMemoryStore()
	for i := 0; i < 5; i++ {
		seedSessionWithCost(t, s, "t1", fmt.Sprintf("a-%d", i), "agent-1", 0.1, "v-A")
		seedSessionWithCost(t, s, "t1", fmt.Sprintf("b-%d", i), "agent-1", 0.1, "v-B")
	}
	e := New(s)
	b := &Benchmark{TenantID: "t1", Variants: []Variant{{Name: "A", Tag: "v-A"}, {Name: "B", Tag: "v-B"}}, Metrics: []MetricName{MetricAvgCost}}
	result, err := e.Compute(context.Background(), b)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "insufficient data")
}

func TestEngine_Compute_NoSignificantDifference(t *testing.T) {
	s := store.NewMemoryStore()
	for i := 0; i < 40; i++ {
		seedSessionWithCost(t, s, "t1", fmt.Sprintf("a-%d", i), "agent-1", 0.10, "v-A")
		seedSessionWithCost(t, s, "t1", fmt.Sprintf("b-%d", i), "agent-1", 0.10, "v-B")
	}
	e := New(s)
	b := &Benchmark{TenantID: "t1", Variants: []Variant{{Name: "A", Tag: "v-A"}, {Name: "B", Tag: "v-B"}}, Metrics: []MetricName{MetricAvgCost}}
	result, err := e.Compute(context.Background(), b)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "no significant difference")
}

func TestEngine_Compute_TokensMetricNeverDeclaresWinner(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.InsertEvents(context.Background(), "t1", []*eventmodel.Event{{
		ID: "a-1", SessionID: "a-1", AgentID: "agent-1", TenantID: "t1", EventType: eventmodel.EventLLMResponse,
		Severity: eventmodel.SeverityInfo, Timestamp: time.Now(),
		Payload: map[string]any{"inputTokens": 1000.0, "outputTokens": 1000.0},
	}}))
	s.AddTags("t1", "a-1", "v-A")
	require.NoError(t, s.InsertEvents(context.Background(), "t1", []*eventmodel.Event{{
		ID: "b-1", SessionID: "b-1", AgentID: "agent-1", TenantID: "t1", EventType: eventmodel.EventLLMResponse,
		Severity: eventmodel.SeverityInfo, Timestamp: time.Now(),
		Payload: map[string]any{"inputTokens": 10.0, "outputTokens": 10.0},
	}}))
	s.AddTags("t1", "b-1", "v-B")

	e := New(s)
	b := &Benchmark{TenantID: "t1", Variants: []Variant{{Name: "A", Tag: "v-A"}, {Name: "B", Tag: "v-B"}}, Metrics: []MetricName{MetricAvgTokens}}
	result, err := e.Compute(context.Background(), b)
	require.NoError(t, err)
	assert.Empty(t, result.Metrics[0].Comparisons[0].Winner)
}

func TestEngine_Compute_RequiresAtLeastTwoVariants(t *testing.T) {
	e := New(store.NewMemoryStore())
	_, err := e.Compute(context.Background(), &Benchmark{Variants: []Variant{{Name: "A", Tag: "v-A"}}, Metrics: []MetricName{MetricAvgCost}})
	assert.Error(t, err)
}
