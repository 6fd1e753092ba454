package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// pagerDutyEventsURL is PagerDuty's Events API v2 endpoint. No dedicated
// PagerDuty SDK appears anywhere in the retrieval pack, so this provider
// is a plain HTTP POST — the same shape as WebhookProvider but with the
// PD-specific envelope, documented as a stdlib net/http usage in
// DESIGN.md.
const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutyProvider triggers a PagerDuty event via the routing key
// configured on the channel.
type PagerDutyProvider struct {
	client *http.Client
	url    string // overridable in tests
}

func NewPagerDutyProvider() *PagerDutyProvider {
	return &PagerDutyProvider{client: &http.Client{Timeout: RequestTimeout}, url: pagerDutyEventsURL}
}

func (p *PagerDutyProvider) Send(ctx context.Context, channel Channel, payload Payload) DeliveryResult {
	routingKey := channel.Config["routingKey"]
	if routingKey == "" {
		return DeliveryResult{Success: false, Attempt: 1, Error: "notify: pagerduty channel missing routingKey"}
	}

	body, err := json.Marshal(map[string]any{
		"routing_key":  routingKey,
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":         fmt.Sprintf("%v", payload["title"]),
			"source":          "agentlens",
			"severity":        severityForPagerDuty(payload),
			"custom_details":  payload,
		},
	})
	if err != nil {
		return DeliveryResult{Success: false, Attempt: 1, Error: fmt.Sprintf("notify: marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{Success: false, Attempt: 1, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return DeliveryResult{Success: false, Attempt: 1, Error: err.Error()}
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	result := DeliveryResult{Success: success, Attempt: 1, HTTPStatus: resp.StatusCode}
	if !success {
		result.Error = fmt.Sprintf("notify: pagerduty returned status %d", resp.StatusCode)
	}
	return result
}

func severityForPagerDuty(payload Payload) string {
	if sev, ok := payload["severity"].(string); ok && sev != "" {
		return sev
	}
	return "warning"
}
