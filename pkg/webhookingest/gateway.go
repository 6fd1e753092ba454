package webhookingest

import (
	"context"
	"fmt"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/ingest"
	"github.com/google/uuid"
)

// DefaultAgentPrefix names the synthesized agent a webhook event is
// attributed to when the caller's context carries no agentlens_agent_id.
const DefaultAgentPrefix = "webhook:"

// Gateway verifies and ingests third-party webhook events.
type Gateway struct {
	ingester Ingester
	secrets  SecretResolver
	genID    IDGenerator
}

// New constructs a Gateway. genID defaults to uuid.NewString.
func New(ingester Ingester, secrets SecretResolver, genID IDGenerator) *Gateway {
	if genID == nil {
		genID = uuid.NewString
	}
	return &Gateway{ingester: ingester, secrets: secrets, genID: genID}
}

// Ingest verifies rawBody against sigHex using req.Source's configured
// secret, maps req.Event to a canonical eventType, and feeds the result
// through the ingest pipeline. Returns ErrUnknownSource,
// ErrInvalidSignature, or ErrUnknownEvent for the respective rejection
// — callers map these to 401/400 per spec.md §6.
func (g *Gateway) Ingest(ctx context.Context, tenantID string, rawBody []byte, sigHex string, req Request) (*eventmodel.Event, error) {
	secret, ok := g.secrets.SecretFor(req.Source)
	if !ok {
		return nil, ErrUnknownSource
	}
	if !VerifySignature(rawBody, sigHex, secret) {
		return nil, ErrInvalidSignature
	}

	eventType, ok := eventTypeFor(req.Source, req.Event)
	if !ok {
		return nil, ErrUnknownEvent
	}

	sessionID := stringField(req.Context, ContextSessionKey)
	if sessionID == "" {
		sessionID = UnlinkedSessionPrefix + g.genID()
	}
	agentID := stringField(req.Context, ContextAgentKey)
	if agentID == "" {
		agentID = DefaultAgentPrefix + string(req.Source)
	}

	events, err := g.ingester.Ingest(ctx, tenantID, []ingest.IngestRequest{{
		SessionID: sessionID,
		AgentID:   agentID,
		EventType: eventType,
		Severity:  eventmodel.SeverityInfo,
		Payload:   req.Data,
		Metadata:  req.Context,
	}})
	if err != nil {
		return nil, fmt.Errorf("webhookingest: ingest: %w", err)
	}
	return events[0], nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// MemorySecretResolver is a static, in-process SecretResolver for single-
// node deployments and tests.
type MemorySecretResolver struct {
	secrets map[Source]string
}

func NewMemorySecretResolver(secrets map[Source]string) *MemorySecretResolver {
	return &MemorySecretResolver{secrets: secrets}
}

func (r *MemorySecretResolver) SecretFor(source Source) (string, bool) {
	s, ok := r.secrets[source]
	return s, ok
}
