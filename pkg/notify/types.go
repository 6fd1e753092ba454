// Package notify implements C11: the notification router that dispatches
// alert/guardrail payloads to webhook, Slack, PagerDuty, and email
// channels, with SSRF defence, retry/backoff, and a per-rule grouping
// buffer (spec.md §4.10).
package notify

import (
	"context"
	"time"
)

// ProviderType is the closed set of channel backends.
type ProviderType string

const (
	ProviderWebhook   ProviderType = "webhook"
	ProviderSlack     ProviderType = "slack"
	ProviderPagerDuty ProviderType = "pagerduty"
	ProviderEmail     ProviderType = "email"
)

// Channel is a configured notification destination.
type Channel struct {
	ID       string
	TenantID string
	Provider ProviderType
	Config   map[string]string // e.g. {"url": ...} / {"token":..., "channelId":...} / {"routingKey":...} / {"to":..., "smtpAddr":...}
}

// Payload is the generic notification body; alerts/guardrails each build
// one with their own fields (spec.md §4.8/§4.9).
type Payload map[string]any

// DeliveryResult is a single provider attempt's outcome.
type DeliveryResult struct {
	Success    bool
	Attempt    int
	HTTPStatus int
	Error      string
}

// LogRow is appended once per delivery attempt, successful or failed
// (spec.md §4.10).
type LogRow struct {
	ChannelID      string
	RuleID         string
	RuleType       string
	Status         string // "success" | "failed"
	Attempt        int
	ErrorMessage   string
	PayloadSummary string // truncated to 500 chars
	At             time.Time
}

// MaxPayloadSummaryLen bounds LogRow.PayloadSummary.
const MaxPayloadSummaryLen = 500

// Provider sends payload to channel and reports the terminal result of
// its own internal retry policy (if any).
type Provider interface {
	Send(ctx context.Context, channel Channel, payload Payload) DeliveryResult
}
