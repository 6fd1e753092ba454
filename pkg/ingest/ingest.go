// Package ingest implements C5: the synchronous validation → truncation →
// masking → grouping → hashing → insert pipeline that every producer path
// (HTTP edge, webhook adapter, queue drain) ultimately funnels through
// (spec.md §4.5).
package ingest

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentlens/backend/pkg/bus"
	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/store"
)

// MaxEventsPerBatch is spec.md §4.5 step 1's batch size ceiling.
const MaxEventsPerBatch = 1000

// ValidationError is returned for step-1 rejections; callers map it to an
// HTTP 400 with a details list (spec.md §6).
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ingest: validation failed (%d issue(s))", len(e.Details))
}

// IngestRequest is one caller-supplied event before ID/hash assignment.
type IngestRequest struct {
	SessionID string
	AgentID   string
	EventType eventmodel.EventType
	Timestamp *time.Time
	Severity  eventmodel.Severity
	Payload   map[string]any
	Metadata  map[string]any
}

// Masker redacts sensitive content from a payload in place before it is
// persisted (a supplemented feature — see DESIGN.md).
type Masker interface {
	Mask(payload map[string]any)
}

// SideEffects are the best-effort, post-commit hooks of step 5. Nil fields
// are simply skipped.
type SideEffects struct {
	Bus              *bus.Bus
	EnqueueEmbed     func(tenantID, sourceType, sourceID, text string)
	OnSessionUpdated func(ctx context.Context, tenantID, sessionID string)
	OnSessionEnded   func(ctx context.Context, tenantID, sessionID string)
}

// Pipeline wires validation through to the store and side effects.
type Pipeline struct {
	store  store.EventWriter
	masker Masker
	fx     SideEffects
	source ulid.MonotonicReader
}

// New constructs a Pipeline. masker may be nil to disable masking.
func New(s store.EventWriter, masker Masker, fx SideEffects) *Pipeline {
	return &Pipeline{
		store:  s,
		masker: masker,
		fx:     fx,
		source: ulid.Monotonic(rand.Reader, 0),
	}
}

// Ingest runs the full pipeline for tenantID against reqs and returns the
// persisted events in the same order they were submitted.
func (p *Pipeline) Ingest(ctx context.Context, tenantID string, reqs []IngestRequest) ([]*eventmodel.Event, error) {
	if err := p.validate(reqs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	drafts := make([]*eventmodel.Event, len(reqs))
	for i, r := range reqs {
		ts := now
		if r.Timestamp != nil {
			ts = *r.Timestamp
		}
		severity := r.Severity
		if severity == "" {
			severity = eventmodel.SeverityInfo
		}
		payload := r.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		eventmodel.TruncatePayload(payload)
		if p.masker != nil {
			p.masker.Mask(payload)
		}
		drafts[i] = &eventmodel.Event{
			TenantID:  tenantID,
			SessionID: r.SessionID,
			AgentID:   r.AgentID,
			EventType: r.EventType,
			Severity:  severity,
			Timestamp: ts,
			Payload:   payload,
			Metadata:  r.Metadata,
		}
	}

	groups, order := groupBySession(drafts)

	for _, sessionID := range order {
		group := groups[sessionID]
		lastHash, err := p.store.GetLastEventHash(ctx, tenantID, sessionID)
		if err != nil {
			return nil, err
		}
		for _, e := range group {
			e.ID = p.source.ULID().String()
			e.PrevHash = lastHash
			hash, err := eventmodel.ComputeHash(e)
			if err != nil {
				return nil, fmt.Errorf("compute hash: %w", err)
			}
			e.Hash = hash
			lastHash = &hash
		}
		if err := p.store.InsertEvents(ctx, tenantID, group); err != nil {
			return nil, err
		}
	}

	p.runSideEffects(ctx, tenantID, drafts)
	return drafts, nil
}

func (p *Pipeline) validate(reqs []IngestRequest) error {
	if len(reqs) == 0 {
		return &ValidationError{Details: []string{"events must not be empty"}}
	}
	if len(reqs) > MaxEventsPerBatch {
		return &ValidationError{Details: []string{fmt.Sprintf("batch exceeds max size %d", MaxEventsPerBatch)}}
	}
	var details []string
	for i, r := range reqs {
		if r.SessionID == "" {
			details = append(details, fmt.Sprintf("event[%d]: sessionId is required", i))
		}
		if r.AgentID == "" {
			details = append(details, fmt.Sprintf("event[%d]: agentId is required", i))
		}
		if !eventmodel.ValidEventTypes[r.EventType] {
			details = append(details, fmt.Sprintf("event[%d]: unknown eventType %q", i, r.EventType))
		}
		if r.Severity != "" && !eventmodel.ValidSeverities[r.Severity] {
			details = append(details, fmt.Sprintf("event[%d]: unknown severity %q", i, r.Severity))
		}
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// groupBySession groups events by sessionID, preserving first-seen order
// so groups are processed deterministically for a given request.
func groupBySession(events []*eventmodel.Event) (map[string][]*eventmodel.Event, []string) {
	groups := make(map[string][]*eventmodel.Event)
	var order []string
	for _, e := range events {
		if _, ok := groups[e.SessionID]; !ok {
			order = append(order, e.SessionID)
		}
		groups[e.SessionID] = append(groups[e.SessionID], e)
	}
	return groups, order
}

func (p *Pipeline) runSideEffects(ctx context.Context, tenantID string, events []*eventmodel.Event) {
	defer func() { _ = recover() }() // best-effort: side effects never fail the caller's ack

	affectedSessions := make(map[string]bool)
	var endedSessions []string
	for _, e := range events {
		affectedSessions[e.SessionID] = true
		if p.fx.Bus != nil {
			p.fx.Bus.Publish(e)
		}
		if p.fx.EnqueueEmbed != nil {
			if text, ok := summarizable(e); ok {
				p.fx.EnqueueEmbed(tenantID, "event", e.ID, text)
			}
		}
		if e.EventType == eventmodel.EventSessionEnded {
			endedSessions = append(endedSessions, e.SessionID)
		}
	}
	if p.fx.OnSessionUpdated != nil {
		for sid := range affectedSessions {
			p.fx.OnSessionUpdated(ctx, tenantID, sid)
		}
	}
	if p.fx.OnSessionEnded != nil {
		for _, sid := range endedSessions {
			p.fx.OnSessionEnded(ctx, tenantID, sid)
		}
	}
}

// summarizable extracts a short text summary worth embedding from an
// event's payload, per spec.md §4.5 step 5 ("events that yield a
// non-empty summary").
func summarizable(e *eventmodel.Event) (string, bool) {
	switch e.EventType {
	case eventmodel.EventLLMResponse:
		if s, ok := eventmodel.StringField(e.Payload, "content"); ok && s != "" {
			return s, true
		}
	case eventmodel.EventToolResponse:
		if s, ok := eventmodel.StringField(e.Payload, "result"); ok && s != "" {
			return s, true
		}
	case eventmodel.EventError, eventmodel.EventToolError:
		if s, ok := eventmodel.StringField(e.Payload, "message"); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
