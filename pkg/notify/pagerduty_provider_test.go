package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagerDutyProvider_SendsEventToConfiguredURL(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewPagerDutyProvider()
	p.url = srv.URL

	result := p.Send(context.Background(), Channel{Config: map[string]string{"routingKey": "rk1"}}, Payload{"title": "boom"})
	require.True(t, result.Success)
	assert.Contains(t, string(gotBody), "rk1")
}

func TestPagerDutyProvider_MissingRoutingKeyFails(t *testing.T) {
	p := NewPagerDutyProvider()
	result := p.Send(context.Background(), Channel{Config: map[string]string{}}, Payload{})
	assert.False(t, result.Success)
}
