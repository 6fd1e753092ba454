// Package bus is the in-process event bus (spec.md §4.6, C6) that fans out
// newly ingested events to SSE/WebSocket subscribers in real time. It
// generalizes the teacher's pkg/events.ConnectionManager channel-fanout
// pattern from a WebSocket-specific broadcaster into a transport-agnostic
// pub/sub keyed by tenant.
package bus

import (
	"context"
	"sync"

	"github.com/agentlens/backend/pkg/eventmodel"
)

// DefaultBufferSize is the bounded per-subscriber channel capacity
// (spec.md §4.6: "bounded per-subscriber buffer, default 256").
const DefaultBufferSize = 256

// Subscription is a live feed of events for one tenant (optionally
// narrowed to one session). Cancel releases it.
type Subscription struct {
	C      <-chan *eventmodel.Event
	Lagged func() uint64
	Cancel context.CancelFunc
}

type subscriber struct {
	ch        chan *eventmodel.Event
	sessionID string // "" means all sessions for the tenant
	lagged    uint64
	mu        sync.Mutex
}

// Bus is a tenant-scoped, non-blocking publish/subscribe fanout. Publish
// never blocks on a slow subscriber: when a subscriber's buffer is full,
// the oldest buffered event is dropped to make room and its lagged
// counter is incremented (spec.md §4.6).
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{} // tenantID -> subscriber set
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a new subscriber for tenantID, optionally narrowed to
// sessionID. The returned Subscription is valid until ctx is cancelled or
// Cancel is called.
func (b *Bus) Subscribe(ctx context.Context, tenantID, sessionID string, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	sub := &subscriber{ch: make(chan *eventmodel.Event, bufferSize), sessionID: sessionID}

	b.mu.Lock()
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = make(map[*subscriber]struct{})
	}
	b.subs[tenantID][sub] = struct{}{}
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-subCtx.Done()
		b.unsubscribe(tenantID, sub)
	}()

	return &Subscription{
		C: sub.ch,
		Lagged: func() uint64 {
			sub.mu.Lock()
			defer sub.mu.Unlock()
			return sub.lagged
		},
		Cancel: cancel,
	}
}

func (b *Bus) unsubscribe(tenantID string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[tenantID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, tenantID)
		}
	}
}

// Publish delivers e to every subscriber for e.TenantID whose session
// filter matches. Never blocks: a full subscriber buffer has its oldest
// entry dropped to make room for e.
func (b *Bus) Publish(e *eventmodel.Event) {
	b.mu.RLock()
	set, ok := b.subs[e.TenantID]
	if !ok {
		b.mu.RUnlock()
		return
	}
	subs := make([]*subscriber, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if s.sessionID != "" && s.sessionID != e.SessionID {
			continue
		}
		deliver(s, e)
	}
}

func deliver(s *subscriber, e *eventmodel.Event) {
	select {
	case s.ch <- e:
		return
	default:
	}
	// Buffer full: drop the oldest entry to make room, matching the
	// teacher's non-blocking-send-over-consistency stance for live feeds.
	select {
	case <-s.ch:
		s.mu.Lock()
		s.lagged++
		s.mu.Unlock()
	default:
	}
	select {
	case s.ch <- e:
	default:
	}
}

// SubscriberCount reports how many live subscriptions exist for tenantID;
// used by health checks and tests.
func (b *Bus) SubscriberCount(tenantID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[tenantID])
}
