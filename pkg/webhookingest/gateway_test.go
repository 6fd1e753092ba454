package webhookingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/ingest"
	"github.com/agentlens/backend/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "shh-its-a-secret"

func newGateway(t *testing.T) (*Gateway, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	pipeline := ingest.New(s, nil, ingest.SideEffects{})
	resolver := NewMemorySecretResolver(map[Source]string{
		SourceFormbridge: testSecret,
		SourceAgentgate:  testSecret,
		SourceGeneric:    testSecret,
	})
	ids := []string{"fixed-id-1", "fixed-id-2"}
	i := 0
	gen := func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
	return New(pipeline, resolver, gen), s
}

func body(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"event": "submission.created", "foo": "bar"})
	require.NoError(t, err)
	return b
}

func TestIngest_ValidSignatureAndKnownEventSucceeds(t *testing.T) {
	g, s := newGateway(t)
	b := body(t)
	sig := SignBody(b, testSecret)

	ev, err := g.Ingest(context.Background(), "t1", b, sig, Request{
		Source: SourceFormbridge,
		Event:  "submission.created",
		Data:   map[string]any{"formId": "f1"},
	})
	require.NoError(t, err)
	assert.Equal(t, eventmodel.EventFormSubmitted, ev.EventType)
	assert.Contains(t, ev.SessionID, UnlinkedSessionPrefix)

	timeline, err := s.GetSessionTimeline(context.Background(), "t1", ev.SessionID)
	require.NoError(t, err)
	assert.Len(t, timeline.Events, 1)
}

func TestIngest_WrongSignatureRejected(t *testing.T) {
	g, _ := newGateway(t)
	b := body(t)
	sig := SignBody(b, "wrong-secret")

	_, err := g.Ingest(context.Background(), "t1", b, sig, Request{Source: SourceFormbridge, Event: "submission.created"})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestIngest_UnknownEventNameRejected(t *testing.T) {
	g, _ := newGateway(t)
	b := body(t)
	sig := SignBody(b, testSecret)

	_, err := g.Ingest(context.Background(), "t1", b, sig, Request{Source: SourceFormbridge, Event: "submission.unknown"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestIngest_UnknownSourceRejected(t *testing.T) {
	g, _ := newGateway(t)
	b := body(t)
	sig := SignBody(b, testSecret)

	_, err := g.Ingest(context.Background(), "t1", b, sig, Request{Source: "unknown-source", Event: "x"})
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestIngest_LinksToExistingSessionViaContext(t *testing.T) {
	g, _ := newGateway(t)
	b := body(t)
	sig := SignBody(b, testSecret)

	ev, err := g.Ingest(context.Background(), "t1", b, sig, Request{
		Source:  SourceAgentgate,
		Event:   "request.approved",
		Context: map[string]any{ContextSessionKey: "sess-42", ContextAgentKey: "agent-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-42", ev.SessionID)
	assert.Equal(t, "agent-9", ev.AgentID)
	assert.Equal(t, eventmodel.EventApprovalGranted, ev.EventType)
}

func TestIngest_GenericSourceAllowsCanonicalEventTypeDirectly(t *testing.T) {
	g, _ := newGateway(t)
	b, err := json.Marshal(map[string]any{"event": "custom"})
	require.NoError(t, err)
	sig := SignBody(b, testSecret)

	ev, err := g.Ingest(context.Background(), "t1", b, sig, Request{Source: SourceGeneric, Event: "custom"})
	require.NoError(t, err)
	assert.Equal(t, eventmodel.EventCustom, ev.EventType)
}

func TestVerifySignature_FlippingAnyByteFails(t *testing.T) {
	b := []byte("hello world")
	sig := SignBody(b, testSecret)
	assert.True(t, VerifySignature(b, sig, testSecret))

	tampered := append([]byte(nil), b...)
	tampered[0] ^= 0xFF
	assert.False(t, VerifySignature(tampered, sig, testSecret))
}

func TestVerifySignature_MalformedHexRejected(t *testing.T) {
	assert.False(t, VerifySignature([]byte("x"), "not-hex!!", testSecret))
}
