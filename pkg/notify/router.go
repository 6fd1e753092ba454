package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// LogStore persists one row per delivery attempt.
type LogStore interface {
	Append(row *LogRow) error
}

// MemoryLogStore is an in-process LogStore for tests and single-node
// deployments.
type MemoryLogStore struct {
	mu   sync.Mutex
	rows []*LogRow
}

func NewMemoryLogStore() *MemoryLogStore { return &MemoryLogStore{} }

func (s *MemoryLogStore) Append(row *LogRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *MemoryLogStore) Rows() []*LogRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*LogRow, len(s.rows))
	copy(out, s.rows)
	return out
}

// Router implements the Notify capability consumed by pkg/alerts and
// pkg/guardrails: resolve each channel entry, dispatch through its
// provider (via the grouping buffer), and log every attempt.
type Router struct {
	channels  ChannelStore
	providers map[ProviderType]Provider
	logs      LogStore
	buffer    *groupBuffer
}

// Config configures grouping window/threshold; zero values use defaults.
type Config struct {
	GroupWindow        time.Duration
	GroupSizeThreshold int
	AllowInternal      bool
}

// New builds a Router with the standard provider set.
func New(channels ChannelStore, logs LogStore, cfg Config) *Router {
	r := &Router{
		channels: channels,
		logs:     logs,
		providers: map[ProviderType]Provider{
			ProviderWebhook:   NewWebhookProvider(NewSSRFGuard(cfg.AllowInternal)),
			ProviderSlack:     NewSlackProvider(),
			ProviderPagerDuty: NewPagerDutyProvider(),
			ProviderEmail:     NewEmailProvider(),
		},
	}
	r.buffer = newGroupBuffer(cfg.GroupWindow, cfg.GroupSizeThreshold, r.dispatchGroup)
	return r
}

// Notify resolves each entry in channels (absolute http(s) URL → raw
// webhook, else a channel ID lookup) and enqueues the payload onto that
// channel's per-ruleId grouping buffer. Failures are logged per spec.md
// §7 ("notification delivery never throws back into the engine").
func (r *Router) Notify(ctx context.Context, tenantID string, channels []string, payload map[string]any) error {
	ruleID, _ := payload["ruleId"].(string)
	if ruleID == "" {
		// No grouping key (e.g. a manual test notification) — dispatch directly.
		r.dispatchGroup(tenantID, channels, payload)
		return nil
	}
	r.buffer.Add(tenantID, ruleID, channels, payload)
	return nil
}

func (r *Router) dispatchGroup(tenantID string, channelEntries []string, payload Payload) {
	ctx := context.Background()
	ruleID, _ := payload["ruleId"].(string)
	ruleType, _ := payload["source"].(string)

	for _, entry := range channelEntries {
		channel, provider, err := r.resolve(tenantID, entry)
		if err != nil {
			slog.Error("notify: could not resolve channel", "entry", entry, "error", err)
			r.appendLog(&LogRow{ChannelID: entry, RuleID: ruleID, RuleType: ruleType, Status: "failed", Attempt: 0, ErrorMessage: err.Error(), PayloadSummary: summarize(payload), At: time.Now()})
			continue
		}
		result := provider.Send(ctx, *channel, payload)
		status := "failed"
		if result.Success {
			status = "success"
		}
		r.appendLog(&LogRow{
			ChannelID: channel.ID, RuleID: ruleID, RuleType: ruleType, Status: status,
			Attempt: result.Attempt, ErrorMessage: result.Error, PayloadSummary: summarize(payload), At: time.Now(),
		})
	}
}

func (r *Router) resolve(tenantID, entry string) (*Channel, Provider, error) {
	if u, err := url.Parse(entry); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		c := &Channel{ID: entry, TenantID: tenantID, Provider: ProviderWebhook, Config: map[string]string{"url": entry}}
		return c, r.providers[ProviderWebhook], nil
	}
	c, ok := r.channels.Get(tenantID, entry)
	if !ok {
		return nil, nil, fmt.Errorf("notify: unknown channel %q", entry)
	}
	p, ok := r.providers[c.Provider]
	if !ok {
		return nil, nil, fmt.Errorf("notify: no provider registered for %q", c.Provider)
	}
	return c, p, nil
}

func (r *Router) appendLog(row *LogRow) {
	if err := r.logs.Append(row); err != nil {
		slog.Error("notify: append log row failed", "error", err)
	}
}

func summarize(payload Payload) string {
	s := fmt.Sprintf("%v", map[string]any(payload))
	if len(s) > MaxPayloadSummaryLen {
		return s[:MaxPayloadSummaryLen]
	}
	return s
}
