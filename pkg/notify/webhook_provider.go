package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RequestTimeout is the per-attempt outbound HTTP timeout (spec.md §5:
// "every outbound HTTP call... uses a 10-second timeout").
const RequestTimeout = 10 * time.Second

// webhookRetryDelays are spec.md §4.10's fixed backoff schedule.
var webhookRetryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}

// WebhookProvider POSTs payload as JSON to an arbitrary http(s) URL,
// retrying non-2xx responses with the fixed delay schedule, up to 3
// retries (4 attempts total).
type WebhookProvider struct {
	client *http.Client
	guard  *SSRFGuard
}

// NewWebhookProvider builds a provider with its own timeout-bound client.
func NewWebhookProvider(guard *SSRFGuard) *WebhookProvider {
	return &WebhookProvider{client: &http.Client{Timeout: RequestTimeout}, guard: guard}
}

func (p *WebhookProvider) Send(ctx context.Context, channel Channel, payload Payload) DeliveryResult {
	url := channel.Config["url"]
	if url == "" {
		return DeliveryResult{Success: false, Attempt: 1, Error: "notify: webhook channel missing url"}
	}
	if err := p.guard.CheckURL(ctx, url); err != nil {
		return DeliveryResult{Success: false, Attempt: 1, Error: err.Error()}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return DeliveryResult{Success: false, Attempt: 1, Error: fmt.Sprintf("notify: marshal payload: %v", err)}
	}

	var result DeliveryResult
	attempt := 0
	policy := fixedDelaySchedule(webhookRetryDelays)

	_ = backoff.Retry(func() error {
		attempt++
		status, err := p.post(ctx, url, body)
		result = DeliveryResult{Success: err == nil && status >= 200 && status < 300, Attempt: attempt, HTTPStatus: status}
		if err != nil {
			result.Error = err.Error()
			return err
		}
		if status < 200 || status >= 300 {
			result.Error = fmt.Sprintf("notify: webhook returned status %d", status)
			return errors.New(result.Error)
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	return result
}

func (p *WebhookProvider) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// fixedDelaySchedule adapts spec.md's literal [1s, 5s, 30s] schedule to
// backoff.BackOff, stopping after the schedule is exhausted.
type fixedDelayBackOff struct {
	delays []time.Duration
	idx    int
}

func fixedDelaySchedule(delays []time.Duration) backoff.BackOff {
	return &fixedDelayBackOff{delays: delays}
}

func (b *fixedDelayBackOff) NextBackOff() time.Duration {
	if b.idx >= len(b.delays) {
		return backoff.Stop
	}
	d := b.delays[b.idx]
	b.idx++
	return d
}

func (b *fixedDelayBackOff) Reset() { b.idx = 0 }
