package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_DispatchesToRawWebhookURL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	logs := NewMemoryLogStore()
	router := New(NewMemoryChannelStore(), logs, Config{GroupWindow: 10 * time.Millisecond, AllowInternal: true})

	err := router.Notify(context.Background(), "t1", []string{srv.URL}, map[string]any{"title": "x", "message": "y"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRouter_ResolvesChannelIDAgainstStore(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	channels := NewMemoryChannelStore()
	channels.Put(&Channel{ID: "ch1", TenantID: "t1", Provider: ProviderWebhook, Config: map[string]string{"url": srv.URL}})

	logs := NewMemoryLogStore()
	router := New(channels, logs, Config{GroupWindow: 10 * time.Millisecond, AllowInternal: true})

	err := router.Notify(context.Background(), "t1", []string{"ch1"}, map[string]any{"title": "x", "message": "y"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRouter_GroupsRepeatedAlertsForSameRule(t *testing.T) {
	var bodies int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&bodies, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	channels := NewMemoryChannelStore()
	channels.Put(&Channel{ID: "ch1", TenantID: "t1", Provider: ProviderWebhook, Config: map[string]string{"url": srv.URL}})

	logs := NewMemoryLogStore()
	router := New(channels, logs, Config{GroupWindow: 50 * time.Millisecond, AllowInternal: true})

	for i := 0; i < 3; i++ {
		_ = router.Notify(context.Background(), "t1", []string{"ch1"}, map[string]any{"ruleId": "r1", "title": "x"})
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&bodies) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&bodies), "three alerts for the same rule within the window collapse into one delivery")
}

func TestRouter_LogsFailedDeliveryForUnknownChannel(t *testing.T) {
	logs := NewMemoryLogStore()
	router := New(NewMemoryChannelStore(), logs, Config{GroupWindow: 5 * time.Millisecond})

	err := router.Notify(context.Background(), "t1", []string{"missing-channel"}, map[string]any{"title": "x"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(logs.Rows()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "failed", logs.Rows()[0].Status)
}

func TestSSRFGuard_RejectsPrivateDestinationsByDefault(t *testing.T) {
	guard := NewSSRFGuard(false)
	err := guard.CheckURL(context.Background(), "http://127.0.0.1:9999/hook")
	assert.Error(t, err)
}

func TestSSRFGuard_AllowsPrivateDestinationsWhenEnabled(t *testing.T) {
	guard := NewSSRFGuard(true)
	err := guard.CheckURL(context.Background(), "http://127.0.0.1:9999/hook")
	assert.NoError(t, err)
}

func TestSSRFGuard_RejectsNonHTTPScheme(t *testing.T) {
	guard := NewSSRFGuard(true)
	err := guard.CheckURL(context.Background(), "ftp://example.com/hook")
	assert.Error(t, err)
}
