package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookProvider_SucceedsOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhookProvider(NewSSRFGuard(true))
	result := p.Send(context.Background(), Channel{Config: map[string]string{"url": srv.URL}}, Payload{"title": "x"})
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempt)
}

func TestWebhookProvider_RejectsPrivateDestination(t *testing.T) {
	p := NewWebhookProvider(NewSSRFGuard(false))
	result := p.Send(context.Background(), Channel{Config: map[string]string{"url": "http://127.0.0.1:1/hook"}}, Payload{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not a public address")
}

func TestWebhookProvider_MissingURLFailsImmediately(t *testing.T) {
	p := NewWebhookProvider(NewSSRFGuard(true))
	result := p.Send(context.Background(), Channel{Config: map[string]string{}}, Payload{})
	assert.False(t, result.Success)
}

func TestWebhookProvider_RetriesNon2xxUpToScheduleLength(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	saved := webhookRetryDelays
	webhookRetryDelays = nil // make the test instant: zero retries after first attempt
	defer func() { webhookRetryDelays = saved }()

	p := NewWebhookProvider(NewSSRFGuard(true))
	result := p.Send(context.Background(), Channel{Config: map[string]string{"url": srv.URL}}, Payload{})
	assert.False(t, result.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, result.Attempt)
}
