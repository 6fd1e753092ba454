package eventmodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleEvent() *Event {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Event{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Timestamp: ts,
		SessionID: "s1",
		AgentID:   "a1",
		TenantID:  "t1",
		EventType: EventToolCall,
		Severity:  SeverityInfo,
		Payload:   map[string]any{"toolName": "grep", "zeta": 1, "alpha": 2},
		PrevHash:  nil,
	}
}

// P2: hash determinism — identical input always yields identical output.
func TestComputeHash_Deterministic(t *testing.T) {
	e1 := sampleEvent()
	e2 := sampleEvent()

	h1, err := ComputeHash(e1)
	require.NoError(t, err)
	h2, err := ComputeHash(e2)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
}

func TestComputeHash_KeyOrderIndependent(t *testing.T) {
	e := sampleEvent()
	e.Payload = map[string]any{"alpha": 2, "zeta": 1, "toolName": "grep"}

	h1, err := ComputeHash(e)
	require.NoError(t, err)

	e.Payload = map[string]any{"zeta": 1, "toolName": "grep", "alpha": 2}
	h2, err := ComputeHash(e)
	require.NoError(t, err)

	require.Equal(t, h1, h2, "map iteration order must not affect the hash")
}

func TestComputeHash_ChangesWithPrevHash(t *testing.T) {
	e := sampleEvent()
	h1, err := ComputeHash(e)
	require.NoError(t, err)

	prev := "deadbeef"
	e.PrevHash = &prev
	h2, err := ComputeHash(e)
	require.NoError(t, err)

	require.NotEqual(t, h1, h2)
}

func TestComputeHash_MetadataOmittedWhenNil(t *testing.T) {
	e1 := sampleEvent()
	e1.Metadata = nil
	h1, err := ComputeHash(e1)
	require.NoError(t, err)

	e2 := sampleEvent()
	e2.Metadata = map[string]any{}
	h2, err := ComputeHash(e2)
	require.NoError(t, err)

	require.NotEqual(t, h1, h2, "omitted metadata must differ from an empty-object metadata")
}

func TestTruncatePayload(t *testing.T) {
	long := make([]byte, MaxPayloadFieldBytes+10)
	for i := range long {
		long[i] = 'x'
	}
	payload := map[string]any{"big": string(long), "small": "ok"}
	TruncatePayload(payload)

	require.Equal(t, "ok", payload["small"])
	big := payload["big"].(string)
	require.LessOrEqual(t, len(big), MaxPayloadFieldBytes)
	require.Contains(t, big, TruncatedSuffix)
}
