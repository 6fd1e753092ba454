package store

import (
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
)

// SessionStatus is the closed enum from spec.md §3.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// Session is the per-(tenant,session) aggregate row.
type Session struct {
	TenantID  string
	SessionID string
	AgentID   string
	AgentName string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    SessionStatus

	EventCount       int64
	ToolCallCount    int64
	ErrorCount       int64
	LLMCallCount     int64
	TotalInputTokens int64
	TotalOutputTokens int64
	TotalCostUsd     float64

	Tags []string
}

// Agent is the per-(tenant,agent) upserted row. Guardrail actions mutate
// Paused and ModelOverride in place.
type Agent struct {
	TenantID     string
	AgentID      string
	Name         string
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
	SessionCount int64

	Paused        bool
	ModelOverride string
}

// EventFilter is the query shape for queryEvents (spec.md §4.2).
type EventFilter struct {
	SessionID    string
	AgentID      string
	EventTypes   []eventmodel.EventType
	Severities   []eventmodel.Severity
	From, To     *time.Time
	PayloadLike  string
	Limit        int
	Offset       int
	OrderDesc    bool
}

// SessionFilter is the query shape for querySessions.
type SessionFilter struct {
	AgentID   string
	Status    SessionStatus
	Tags      []string
	From, To  *time.Time
	Limit     int
	Offset    int
}

// EventPage is the envelope returned by queryEvents. ChainValid is set to
// false when the stored chain for any returned session is found broken —
// reads must still return data (spec.md §4.2 failure model).
type EventPage struct {
	Events     []*eventmodel.Event
	Total      int
	HasMore    bool
	ChainValid bool
}

// SessionPage is the envelope returned by querySessions.
type SessionPage struct {
	Sessions []*Session
	Total    int
	HasMore  bool
}

// Timeline is the response to getSessionTimeline.
type Timeline struct {
	Events     []*eventmodel.Event
	ChainValid bool
}
