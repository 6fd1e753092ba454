package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRuleStore is an in-process RuleStore for single-node deployments
// and tests, mirroring pkg/store.MemoryStore's mutex-guarded map idiom.
type MemoryRuleStore struct {
	mu      sync.Mutex
	rules   map[string]*Rule
	history []*HistoryRow
}

// NewMemoryRuleStore creates an empty store.
func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]*Rule)}
}

// Put inserts or replaces a rule, assigning an ID if empty.
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

func (s *MemoryRuleStore) Delete(ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, ruleID)
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

// List returns every rule for tenantID, enabled or not — used by the
// rule CRUD admin endpoints, as opposed to ListEnabledRules which the
// evaluation loop uses.
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

func (s *MemoryRuleStore) AppendHistory(row *HistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	s.history = append(s.history, row)
	return nil
}

// History returns a copy of every recorded firing, oldest first.
func (s *MemoryRuleStore) History() []*HistoryRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*HistoryRow, len(s.history))
	copy(out, s.history)
	return out
}

// ListHistory implements RuleStore.ListHistory, scoping History() to one
// tenant.
func (s *MemoryRuleStore) ListHistory(tenantID string) ([]*HistoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*HistoryRow, 0, len(s.history))
	for _, row := range s.history {
		if row.TenantID == tenantID {
			out = append(out, row)
		}
	}
	return out, nil
}
