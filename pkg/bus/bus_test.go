package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlens/backend/pkg/eventmodel"
)

func mkEvent(tenantID, sessionID string) *eventmodel.Event {
	return &eventmodel.Event{
		ID:        "ev-1",
		TenantID:  tenantID,
		SessionID: sessionID,
		AgentID:   "agent-1",
		EventType: eventmodel.EventToolCall,
		Severity:  eventmodel.SeverityInfo,
		Payload:   map[string]any{},
	}
}

func TestBus_DeliversToMatchingTenant(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := b.Subscribe(ctx, "tenant-a", "", 0)

	b.Publish(mkEvent("tenant-a", "sess-1"))

	select {
	case e := <-sub.C:
		assert.Equal(t, "tenant-a", e.TenantID)
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestBus_TenantIsolation(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := b.Subscribe(ctx, "tenant-a", "", 0)

	b.Publish(mkEvent("tenant-b", "sess-1"))

	select {
	case <-sub.C:
		t.Fatal("should not receive another tenant's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SessionFilter(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := b.Subscribe(ctx, "tenant-a", "sess-1", 0)

	b.Publish(mkEvent("tenant-a", "sess-2"))
	select {
	case <-sub.C:
		t.Fatal("should not match a different session")
	case <-time.After(50 * time.Millisecond):
	}

	b.Publish(mkEvent("tenant-a", "sess-1"))
	select {
	case e := <-sub.C:
		assert.Equal(t, "sess-1", e.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected matching session event")
	}
}

func TestBus_DropsOldestWhenFull(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := b.Subscribe(ctx, "tenant-a", "", 2)

	for i := 0; i < 5; i++ {
		b.Publish(mkEvent("tenant-a", "sess-1"))
	}

	require.Eventually(t, func() bool { return sub.Lagged() > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(3), sub.Lagged())
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx, "tenant-a", "", 0)
	assert.Equal(t, 1, b.SubscriberCount("tenant-a"))

	cancel()
	_ = sub

	require.Eventually(t, func() bool { return b.SubscriberCount("tenant-a") == 0 }, time.Second, time.Millisecond)
}
