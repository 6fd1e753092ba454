package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/agentlens/backend/pkg/eventmodel"
)

// MemoryStore is an in-process Store keyed by tenant. It mirrors the
// locking style of the teacher's session.Manager (a single RWMutex
// guarding a map), generalized to the multi-tenant shape spec.md
// requires. Concurrent inserts to the same (tenantID, sessionID) are
// serialized by sessionLock; different sessions proceed in parallel
// because each session's lock is independent (spec.md §5).
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]*tenantData
	sessLock map[string]*sync.Mutex // "tenant/session" -> lock
	sessMu   sync.Mutex
}

type tenantData struct {
	events   []*eventmodel.Event
	sessions map[string]*Session
	agents   map[string]*Agent
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]*tenantData),
		sessLock: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) tenant(tenantID string) *tenantData {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		t = &tenantData{
			sessions: make(map[string]*Session),
			agents:   make(map[string]*Agent),
		}
		s.tenants[tenantID] = t
	}
	return t
}

func (s *MemoryStore) lockFor(tenantID, sessionID string) *sync.Mutex {
	key := tenantID + "/" + sessionID
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	l, ok := s.sessLock[key]
	if !ok {
		l = &sync.Mutex{}
		s.sessLock[key] = l
	}
	return l
}

// GetLastEventHash implements EventWriter.
func (s *MemoryStore) GetLastEventHash(_ context.Context, tenantID, sessionID string) (*string, error) {
	t := s.tenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *eventmodel.Event
	for _, e := range t.events {
		if e.SessionID == sessionID {
			last = e
		}
	}
	if last == nil {
		return nil, nil
	}
	h := last.Hash
	return &h, nil
}

// InsertEvents implements EventWriter. The caller (ingest pipeline) has
// already computed ID/hash/prevHash; this method's job is the atomic
// append plus aggregate update, holding the per-session lock for the
// duration so a concurrent insert cannot interleave (spec.md §5).
func (s *MemoryStore) InsertEvents(_ context.Context, tenantID string, events []*eventmodel.Event) error {
	if len(events) == 0 {
		return nil
	}
	sessionID := events[0].SessionID
	for _, e := range events {
		if e.SessionID != sessionID {
			return newStorageError("InsertEvents", CauseConstraint, errMixedSessions)
		}
	}

	lock := s.lockFor(tenantID, sessionID)
	lock.Lock()
	defer lock.Unlock()

	t := s.tenant(tenantID)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := t.sessions[sessionID]
	if !ok {
		sess = &Session{
			TenantID:  tenantID,
			SessionID: sessionID,
			AgentID:   events[0].AgentID,
			StartedAt: events[0].Timestamp,
			Status:    SessionActive,
		}
		t.sessions[sessionID] = sess

		agent, ok := t.agents[events[0].AgentID]
		if !ok {
			agent = &Agent{
				TenantID:    tenantID,
				AgentID:     events[0].AgentID,
				FirstSeenAt: events[0].Timestamp,
			}
			t.agents[events[0].AgentID] = agent
		}
		agent.SessionCount++
	}

	for _, e := range events {
		applyAggregate(sess, e)
		t.events = append(t.events, e)

		agent := t.agents[e.AgentID]
		if agent == nil {
			agent = &Agent{TenantID: tenantID, AgentID: e.AgentID, FirstSeenAt: e.Timestamp}
			t.agents[e.AgentID] = agent
		}
		if e.Timestamp.After(agent.LastSeenAt) {
			agent.LastSeenAt = e.Timestamp
		}
	}

	return nil
}

func applyAggregate(sess *Session, e *eventmodel.Event) {
	sess.EventCount++
	switch e.EventType {
	case eventmodel.EventToolCall:
		sess.ToolCallCount++
	case eventmodel.EventToolError:
		sess.ErrorCount++
	case eventmodel.EventSessionEnded:
		now := e.Timestamp
		sess.EndedAt = &now
		if sess.Status != SessionError {
			sess.Status = SessionCompleted
		}
	}
	if e.Severity == eventmodel.SeverityError || e.Severity == eventmodel.SeverityCritical {
		if e.EventType != eventmodel.EventToolError {
			sess.ErrorCount++
		}
	}
	if e.Severity == eventmodel.SeverityCritical {
		sess.Status = SessionError
	}
	if e.EventType == eventmodel.EventLLMCall || e.EventType == eventmodel.EventLLMResponse {
		sess.LLMCallCount++
		if in, ok := eventmodel.IntField(e.Payload, "inputTokens"); ok {
			sess.TotalInputTokens += in
		}
		if out, ok := eventmodel.IntField(e.Payload, "outputTokens"); ok {
			sess.TotalOutputTokens += out
		}
	}
	if e.EventType == eventmodel.EventCostTracked {
		if c, ok := eventmodel.FloatField(e.Payload, "costUsd"); ok {
			sess.TotalCostUsd += c
		}
	}
}

// Purge implements EventWriter.
func (s *MemoryStore) Purge(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenants, tenantID)
	return nil
}

// SetAgentPaused implements EventWriter.
func (s *MemoryStore) SetAgentPaused(_ context.Context, tenantID, agentID string, paused bool) error {
	t := s.tenant(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := t.agents[agentID]
	if !ok {
		return newStorageError("SetAgentPaused", CauseConstraint, ErrNotFound)
	}
	a.Paused = paused
	return nil
}

// SetAgentModelOverride implements EventWriter.
func (s *MemoryStore) SetAgentModelOverride(_ context.Context, tenantID, agentID, model string) error {
	t := s.tenant(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := t.agents[agentID]
	if !ok {
		return newStorageError("SetAgentModelOverride", CauseConstraint, ErrNotFound)
	}
	a.ModelOverride = model
	return nil
}

// GetEvent implements EventReader.
func (s *MemoryStore) GetEvent(_ context.Context, tenantID, id string) (*eventmodel.Event, error) {
	t := s.tenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range t.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// GetSessionTimeline implements EventReader. It also verifies the chain
// and sets ChainValid=false (without hiding the data) if broken, per the
// failure model in spec.md §4.2.
func (s *MemoryStore) GetSessionTimeline(_ context.Context, tenantID, sessionID string) (*Timeline, error) {
	t := s.tenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var evts []*eventmodel.Event
	for _, e := range t.events {
		if e.SessionID == sessionID {
			evts = append(evts, e)
		}
	}
	sort.SliceStable(evts, func(i, j int) bool {
		return evts[i].Timestamp.Before(evts[j].Timestamp)
	})

	valid := true
	for i, e := range evts {
		if i == 0 {
			if e.PrevHash != nil {
				valid = false
			}
			continue
		}
		if e.PrevHash == nil || *e.PrevHash != evts[i-1].Hash {
			valid = false
		}
	}

	return &Timeline{Events: evts, ChainValid: valid}, nil
}

// GetSession implements EventReader.
func (s *MemoryStore) GetSession(_ context.Context, tenantID, sessionID string) (*Session, error) {
	t := s.tenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := t.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// QueryEvents implements EventReader.
func (s *MemoryStore) QueryEvents(_ context.Context, tenantID string, filter EventFilter) (*EventPage, error) {
	t := s.tenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*eventmodel.Event
	for _, e := range t.events {
		if !matchesEventFilter(e, filter) {
			continue
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if filter.OrderDesc {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := matched[offset:end]

	return &EventPage{
		Events:     page,
		Total:      total,
		HasMore:    end < total,
		ChainValid: true,
	}, nil
}

func matchesEventFilter(e *eventmodel.Event, f EventFilter) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if len(f.EventTypes) > 0 && !containsType(f.EventTypes, e.EventType) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if f.PayloadLike != "" {
		found := false
		for _, v := range e.Payload {
			if s, ok := v.(string); ok && strings.Contains(s, f.PayloadLike) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsType(list []eventmodel.EventType, v eventmodel.EventType) bool {
	for _, t := range list {
		if t == v {
			return true
		}
	}
	return false
}

func containsSeverity(list []eventmodel.Severity, v eventmodel.Severity) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// QuerySessions implements EventReader.
func (s *MemoryStore) QuerySessions(_ context.Context, tenantID string, filter SessionFilter) (*SessionPage, error) {
	t := s.tenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Session
	for _, sess := range t.sessions {
		if filter.AgentID != "" && sess.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		if len(filter.Tags) > 0 && !anyTagMatches(sess.Tags, filter.Tags) {
			continue
		}
		if filter.From != nil && sess.StartedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && sess.StartedAt.After(*filter.To) {
			continue
		}
		cp := *sess
		matched = append(matched, &cp)
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].StartedAt.Before(matched[j].StartedAt) })

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &SessionPage{Sessions: matched[offset:end], Total: total, HasMore: end < total}, nil
}

func anyTagMatches(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// ListAgents implements EventReader.
func (s *MemoryStore) ListAgents(_ context.Context, tenantID string) ([]*Agent, error) {
	t := s.tenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Agent, 0, len(t.agents))
	for _, a := range t.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// GetAgent implements EventReader.
func (s *MemoryStore) GetAgent(_ context.Context, tenantID, agentID string) (*Agent, error) {
	t := s.tenant(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := t.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// AddTags appends tags to a session's tag set (used by the benchmark
// engine's test fixtures and by session tagging requests). Not part of
// the Store interface — it is memory-store-specific test support, mirrored
// by an UPDATE in the Postgres store's equivalent helper.
func (s *MemoryStore) AddTags(tenantID, sessionID string, tags ...string) {
	t := s.tenant(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := t.sessions[sessionID]
	if !ok {
		return
	}
	existing := map[string]bool{}
	for _, tg := range sess.Tags {
		existing[tg] = true
	}
	for _, tg := range tags {
		if !existing[tg] {
			sess.Tags = append(sess.Tags, tg)
			existing[tg] = true
		}
	}
}

var errMixedSessions = storeErrMixedSessions{}

type storeErrMixedSessions struct{}

func (storeErrMixedSessions) Error() string {
	return "InsertEvents: all events must share one (tenantId, sessionId)"
}
