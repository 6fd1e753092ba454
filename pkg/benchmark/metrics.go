package benchmark

import "github.com/agentlens/backend/pkg/store"

// extractMetric applies spec.md §4.11's per-metric extraction rule to one
// session, returning ok=false when the session must be skipped (e.g. zero
// events for error_rate, no endedAt for avg_duration).
func extractMetric(s *store.Session, metric MetricName) (float64, bool) {
	switch metric {
	case MetricAvgCost:
		return s.TotalCostUsd, true
	case MetricErrorRate:
		if s.EventCount == 0 {
			return 0, false
		}
		return float64(s.ErrorCount) / float64(s.EventCount), true
	case MetricToolSuccessRate:
		if s.ToolCallCount == 0 {
			return 0, false
		}
		return float64(s.ToolCallCount-s.ErrorCount) / float64(s.ToolCallCount), true
	case MetricCompletionRate:
		if s.Status == store.SessionCompleted {
			return 1, true
		}
		return 0, true
	case MetricAvgTokens:
		return float64(s.TotalInputTokens + s.TotalOutputTokens), true
	case MetricAvgDuration:
		if s.EndedAt == nil {
			return 0, false
		}
		return float64(s.EndedAt.Sub(s.StartedAt).Milliseconds()), true
	default:
		return 0, false
	}
}

// collectMetricValues fetches every value for metric across all sessions
// tagged variant.Tag, paging through the full result set.
func collectMetricValues(sessions []*store.Session, metric MetricName) []float64 {
	values := make([]float64, 0, len(sessions))
	for _, s := range sessions {
		if v, ok := extractMetric(s, metric); ok {
			values = append(values, v)
		}
	}
	return values
}
