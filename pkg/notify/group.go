package notify

import (
	"sync"
	"time"
)

// DefaultGroupWindow and DefaultGroupSizeThreshold resolve spec.md §4.10's
// open question ("the window flushes on a timer or at an open
// question-configurable size threshold") — see DESIGN.md for the
// rationale behind these defaults.
const (
	DefaultGroupWindow        = 30 * time.Second
	DefaultGroupSizeThreshold = 10
)

type pendingGroup struct {
	tenantID  string
	channels  []string
	payload   Payload
	count     int
	timer     *time.Timer
}

// groupBuffer collapses repeated notifications for the same ruleId within
// a time window into a single delivery carrying a groupCount field
// (spec.md §4.10).
type groupBuffer struct {
	mu            sync.Mutex
	window        time.Duration
	sizeThreshold int
	groups        map[string]*pendingGroup // key: tenantID+"\x00"+ruleId
	flush         func(tenantID string, channels []string, payload Payload)
}

func newGroupBuffer(window time.Duration, sizeThreshold int, flush func(tenantID string, channels []string, payload Payload)) *groupBuffer {
	if window <= 0 {
		window = DefaultGroupWindow
	}
	if sizeThreshold <= 0 {
		sizeThreshold = DefaultGroupSizeThreshold
	}
	return &groupBuffer{window: window, sizeThreshold: sizeThreshold, groups: make(map[string]*pendingGroup), flush: flush}
}

// Add enqueues payload for ruleID. Returns true if it started a new group
// (caller may use this for metrics; not required for correctness).
func (b *groupBuffer) Add(tenantID, ruleID string, channels []string, payload Payload) {
	key := tenantID + "\x00" + ruleID
	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := b.groups[key]
	if !ok {
		g = &pendingGroup{tenantID: tenantID, channels: channels, payload: payload, count: 1}
		g.timer = time.AfterFunc(b.window, func() { b.flushKey(key) })
		b.groups[key] = g
		return
	}
	g.count++
	g.payload = payload // latest payload wins, per spec.md's "collapsed... single delivery"
	if g.count >= b.sizeThreshold {
		g.timer.Stop()
		b.flushLocked(key)
	}
}

func (b *groupBuffer) flushKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked(key)
}

// flushLocked must be called with b.mu held.
func (b *groupBuffer) flushLocked(key string) {
	g, ok := b.groups[key]
	if !ok {
		return
	}
	delete(b.groups, key)

	out := make(Payload, len(g.payload)+1)
	for k, v := range g.payload {
		out[k] = v
	}
	out["groupCount"] = g.count

	// Dispatch outside the lock to avoid blocking other groups' Add calls.
	tenantID, channels := g.tenantID, g.channels
	go b.flush(tenantID, channels, out)
}
