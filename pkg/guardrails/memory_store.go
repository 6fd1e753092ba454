package guardrails

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRuleStore is an in-process RuleStore for tests and single-node
// deployments.
type MemoryRuleStore struct {
	mu       sync.Mutex
	rules    map[string]*Rule
	states   map[string]*State
	triggers map[string][]*RecentTrigger
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		rules:    make(map[string]*Rule),
		states:   make(map[string]*State),
		triggers: make(map[string][]*RecentTrigger),
	}
}

func (s *MemoryRuleStore) Put(r *Rule) *Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cp := *r
	s.rules[r.ID] = &cp
	return &cp
}

// List returns every rule for tenantID, enabled or not.
func (s *MemoryRuleStore) List(tenantID string) ([]*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.TenantID != tenantID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryRuleStore) Get(ruleID string) *Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rules[ruleID]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (s *MemoryRuleStore) Delete(ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, ruleID)
}

func (s *MemoryRuleStore) ListEnabledRules() ([]*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if !r.Enabled {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryRuleStore) SetLastTriggeredAt(tenantID, ruleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.TenantID != tenantID {
		return nil
	}
	t := at
	r.LastTriggeredAt = &t
	return nil
}

func (s *MemoryRuleStore) UpdateState(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.states[st.RuleID] = &cp
	return nil
}

func (s *MemoryRuleStore) GetState(ruleID string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[ruleID]
	if !ok {
		return nil, false
	}
	cp := *st
	return &cp, true
}

func (s *MemoryRuleStore) AppendTrigger(tenantID, ruleID string, t *RecentTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[ruleID] = append(s.triggers[ruleID], t)
	return nil
}

// RecentTriggers returns a copy of the recorded firings for ruleID.
func (s *MemoryRuleStore) RecentTriggers(ruleID string) []*RecentTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*RecentTrigger, len(s.triggers[ruleID]))
	copy(out, s.triggers[ruleID])
	return out
}
