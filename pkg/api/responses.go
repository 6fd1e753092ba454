package api

import (
	"time"

	"github.com/agentlens/backend/pkg/alerts"
	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/guardrails"
	"github.com/agentlens/backend/pkg/store"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the envelope for every non-2xx JSON response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// IngestResponse is returned by POST /api/events/ingest.
type IngestResponse struct {
	Accepted int                `json:"accepted"`
	Events   []*eventmodel.Event `json:"events"`
}

// EventPageResponse wraps store.EventPage for JSON transport.
type EventPageResponse struct {
	Events     []*eventmodel.Event `json:"events"`
	Total      int                 `json:"total"`
	HasMore    bool                `json:"hasMore"`
	ChainValid bool                `json:"chainValid"`
}

// SessionPageResponse wraps store.SessionPage for JSON transport.
type SessionPageResponse struct {
	Sessions []*store.Session `json:"sessions"`
	Total    int              `json:"total"`
	HasMore  bool              `json:"hasMore"`
}

// TimelineResponse wraps store.Timeline for JSON transport.
type TimelineResponse struct {
	Events     []*eventmodel.Event `json:"events"`
	ChainValid bool                `json:"chainValid"`
}

// RecallMatchResponse is one scored recall hit.
type RecallMatchResponse struct {
	SourceType string    `json:"sourceType"`
	SourceID   string    `json:"sourceId"`
	Content    string    `json:"content"`
	Score      float64   `json:"score"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AlertRuleResponse mirrors alerts.Rule for JSON transport.
type AlertRuleResponse = alerts.Rule

// GuardrailRuleResponse mirrors guardrails.Rule for JSON transport.
type GuardrailRuleResponse = guardrails.Rule

// GuardrailStatusResponse is returned by GET /api/guardrails/rules/:id/status.
type GuardrailStatusResponse struct {
	Rule            *guardrails.Rule          `json:"rule"`
	State           *guardrails.State         `json:"state,omitempty"`
	RecentTriggers  []*guardrails.RecentTrigger `json:"recentTriggers"`
}
