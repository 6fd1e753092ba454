package store

import (
	"context"

	"github.com/agentlens/backend/pkg/eventmodel"
)

// EventWriter is the write-side capability set. Only the ingest pipeline
// and the batch writer hold one of these — per spec.md §9's redesign
// flag ("split the write-side from the read-side so the alert/guardrail
// engines consume only the reader; this prevents accidental writes from
// evaluators").
type EventWriter interface {
	// InsertEvents persists events atomically: either all events in the
	// slice persist (and their session/agent aggregates update) or none
	// do. All events must share the same (tenantID, sessionID) — callers
	// group by session before calling (spec.md §4.5 step 3).
	InsertEvents(ctx context.Context, tenantID string, events []*eventmodel.Event) error

	// GetLastEventHash returns the hash of the most recently inserted
	// event for (tenantID, sessionID), or nil if the session has no
	// events yet. O(1) — used by ingest to chain without loading the
	// full timeline.
	GetLastEventHash(ctx context.Context, tenantID, sessionID string) (*string, error)

	// Purge irreversibly deletes every row for tenantID (events,
	// sessions, agents). Used for data-subject-rights compliance.
	Purge(ctx context.Context, tenantID string) error

	// SetAgentPaused sets/clears the guardrail pause flag on an agent.
	SetAgentPaused(ctx context.Context, tenantID, agentID string, paused bool) error

	// SetAgentModelOverride writes a guardrail-suggested model override.
	SetAgentModelOverride(ctx context.Context, tenantID, agentID, model string) error
}

// EventReader is the read-only capability set consumed by alert and
// guardrail evaluators, the recall/context retriever, the benchmark
// engine and the compliance exporter.
type EventReader interface {
	QueryEvents(ctx context.Context, tenantID string, filter EventFilter) (*EventPage, error)
	GetEvent(ctx context.Context, tenantID, id string) (*eventmodel.Event, error)
	GetSessionTimeline(ctx context.Context, tenantID, sessionID string) (*Timeline, error)
	GetSession(ctx context.Context, tenantID, sessionID string) (*Session, error)
	QuerySessions(ctx context.Context, tenantID string, filter SessionFilter) (*SessionPage, error)
	ListAgents(ctx context.Context, tenantID string) ([]*Agent, error)
	GetAgent(ctx context.Context, tenantID, agentID string) (*Agent, error)
}

// Store is the full contract; concrete implementations (MemoryStore,
// PostgresStore) satisfy both halves, but most components are typed
// against EventReader or EventWriter alone.
type Store interface {
	EventWriter
	EventReader
}
