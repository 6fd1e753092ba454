// Package webhookingest implements spec.md §6's webhook ingest surface:
// POST /api/events/ingest accepts third-party webhook shapes (form
// submissions, approval-gate callbacks, or a generic passthrough),
// verifies an HMAC signature, maps the source's event name to a
// canonical eventType, and feeds the result through the same ingest
// pipeline as the native event API.
package webhookingest

import (
	"context"
	"errors"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/ingest"
)

// Source is the closed set of recognized webhook producers.
type Source string

const (
	SourceFormbridge Source = "formbridge"
	SourceAgentgate  Source = "agentgate"
	SourceGeneric    Source = "generic"
)

// ContextSessionKey and ContextAgentKey are the keys a caller's
// context object may use to link a webhook event to an existing
// AgentLens session/agent.
const (
	ContextSessionKey = "agentlens_session_id"
	ContextAgentKey   = "agentlens_agent_id"
)

// UnlinkedSessionPrefix is prepended to a synthesized session ID when the
// webhook body carries no agentlens_session_id.
const UnlinkedSessionPrefix = "unlinked_"

// Request is the POST /api/events/ingest body.
type Request struct {
	Source  Source
	Event   string
	Data    map[string]any
	Context map[string]any
}

var (
	ErrUnknownSource    = errors.New("webhookingest: unknown source")
	ErrInvalidSignature = errors.New("webhookingest: invalid signature")
	ErrUnknownEvent     = errors.New("webhookingest: unknown event name")
)

// SecretResolver returns the HMAC secret configured for a webhook source.
type SecretResolver interface {
	SecretFor(source Source) (string, bool)
}

// Ingester is the narrow slice of ingest.Pipeline the gateway needs —
// the same shape pkg/guardrails depends on, so either can be satisfied
// by a single *ingest.Pipeline instance.
type Ingester interface {
	Ingest(ctx context.Context, tenantID string, reqs []ingest.IngestRequest) ([]*eventmodel.Event, error)
}

// IDGenerator produces the random suffix for a synthesized session ID.
// Exists so tests can supply deterministic IDs.
type IDGenerator func() string
