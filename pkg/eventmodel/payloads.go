package eventmodel

// This file implements the spec.md §9 redesign flag "Dynamic payloads": a
// sum-type per eventType carrying strongly-typed fields for the known
// subset, with an opaque escape case for `custom`. The wire shape (the
// `payload` map[string]any on Event) is unchanged — these types are a
// typed view over that map used by components that need structured
// access (cost extraction, alert condition evaluation, benchmark metric
// extraction) without re-parsing ad hoc each time.

// ToolCallPayload is the typed view of a tool_call event's payload.
type ToolCallPayload struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResponsePayload is the typed view of a tool_response event's payload.
type ToolResponsePayload struct {
	ToolName   string `json:"toolName"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Result     any    `json:"result,omitempty"`
}

// LLMResponsePayload is the typed view of an llm_response event's payload.
type LLMResponsePayload struct {
	Model        string `json:"model,omitempty"`
	InputTokens  int64  `json:"inputTokens,omitempty"`
	OutputTokens int64  `json:"outputTokens,omitempty"`
	DurationMs   int64  `json:"durationMs,omitempty"`
}

// CostTrackedPayload is the typed view of a cost_tracked event's payload.
type CostTrackedPayload struct {
	Model          string  `json:"model,omitempty"`
	InputTokens    int64   `json:"inputTokens,omitempty"`
	OutputTokens   int64   `json:"outputTokens,omitempty"`
	CacheReadTok   int64   `json:"cacheReadTokens,omitempty"`
	CacheWriteTok  int64   `json:"cacheWriteTokens,omitempty"`
	CostUsd        float64 `json:"costUsd,omitempty"`
}

// SessionStartedPayload is the typed view of a session_started event's payload.
type SessionStartedPayload struct {
	AgentName string `json:"agentName,omitempty"`
}

// SessionEndedPayload is the typed view of a session_ended event's payload.
type SessionEndedPayload struct {
	Outcome string `json:"outcome,omitempty"`
}

// FormPayload covers form_submitted / form_completed / form_expired.
type FormPayload struct {
	FormID string         `json:"formId,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ApprovalPayload covers approval_requested / granted / denied / expired.
type ApprovalPayload struct {
	ApprovalID string `json:"approvalId,omitempty"`
	Approver   string `json:"approver,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// CustomPayload is the opaque escape case: anything goes.
type CustomPayload map[string]any

// floatField and intField read numeric fields out of a raw payload map
// defensively — JSON numbers decode to float64 via encoding/json, but
// payloads may also arrive pre-typed (e.g. from in-process callers), so
// both forms are accepted.
func floatField(payload map[string]any, key string) (float64, bool) {
	v, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// IntField reads an integer-valued payload field, tolerant of JSON's
// float64 decoding.
func IntField(payload map[string]any, key string) (int64, bool) {
	f, ok := floatField(payload, key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// FloatField reads a float-valued payload field.
func FloatField(payload map[string]any, key string) (float64, bool) {
	return floatField(payload, key)
}

// StringField reads a string-valued payload field.
func StringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
