// Package eventmodel defines the canonical event shape shared by every
// other component and the chained-hash algorithm used to make a tenant's
// event log tamper-evident.
package eventmodel

import (
	"fmt"
	"time"
)

// EventType is the closed enum of event kinds a producer may submit.
type EventType string

// Closed set of event types accepted by the ingest pipeline.
const (
	EventSessionStarted    EventType = "session_started"
	EventSessionEnded      EventType = "session_ended"
	EventToolCall          EventType = "tool_call"
	EventToolResponse      EventType = "tool_response"
	EventToolError         EventType = "tool_error"
	EventLLMCall           EventType = "llm_call"
	EventLLMResponse       EventType = "llm_response"
	EventError             EventType = "error"
	EventCostTracked       EventType = "cost_tracked"
	EventApprovalRequested EventType = "approval_requested"
	EventApprovalGranted   EventType = "approval_granted"
	EventApprovalDenied    EventType = "approval_denied"
	EventApprovalExpired   EventType = "approval_expired"
	EventFormSubmitted     EventType = "form_submitted"
	EventFormCompleted     EventType = "form_completed"
	EventFormExpired       EventType = "form_expired"
	EventCustom            EventType = "custom"
)

// ValidEventTypes is used by ingest validation to reject unknown types.
var ValidEventTypes = map[EventType]bool{
	EventSessionStarted: true, EventSessionEnded: true,
	EventToolCall: true, EventToolResponse: true, EventToolError: true,
	EventLLMCall: true, EventLLMResponse: true, EventError: true,
	EventCostTracked: true,
	EventApprovalRequested: true, EventApprovalGranted: true,
	EventApprovalDenied: true, EventApprovalExpired: true,
	EventFormSubmitted: true, EventFormCompleted: true, EventFormExpired: true,
	EventCustom: true,
}

// Severity is a closed enum ordered from least to most urgent.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ValidSeverities is used by ingest validation.
var ValidSeverities = map[Severity]bool{
	SeverityInfo: true, SeverityWarning: true, SeverityError: true, SeverityCritical: true,
}

// MaxPayloadFieldBytes is the per-field truncation bound from spec.md §4.5.
const MaxPayloadFieldBytes = 64 * 1024

// TruncatedSuffix is appended to any payload string truncated to the bound.
const TruncatedSuffix = "[truncated]"

// Event is the canonical, persisted shape of one agent-session event.
//
// Field order here has no bearing on the wire hash — ComputeHash always
// re-serializes through canonicalFields, which fixes the key order.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId"`
	AgentID   string         `json:"agentId"`
	TenantID  string         `json:"tenantId"`
	EventType EventType      `json:"eventType"`
	Severity  Severity       `json:"severity"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	PrevHash  *string        `json:"prevHash"`
	Hash      string         `json:"hash"`
}

// Validate checks the closed enums and required fields. It never inspects
// PrevHash/Hash — those are assigned by the ingest pipeline, not the caller.
func (e *Event) Validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if e.AgentID == "" {
		return fmt.Errorf("agentId is required")
	}
	if !ValidEventTypes[e.EventType] {
		return fmt.Errorf("unknown eventType %q", e.EventType)
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if !ValidSeverities[e.Severity] {
		return fmt.Errorf("unknown severity %q", e.Severity)
	}
	return nil
}

// TruncatePayload truncates any string value over MaxPayloadFieldBytes,
// in place, appending TruncatedSuffix. Only top-level string fields are
// truncated, matching spec.md §4.5 step 2.
func TruncatePayload(payload map[string]any) {
	for k, v := range payload {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if len(s) <= MaxPayloadFieldBytes {
			continue
		}
		cut := MaxPayloadFieldBytes - len(TruncatedSuffix)
		if cut < 0 {
			cut = 0
		}
		payload[k] = s[:cut] + TruncatedSuffix
	}
}
