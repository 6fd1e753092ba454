package apikey

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("apikey: not found")

// Store persists Keys and resolves lookups by hash, never by raw key.
type Store interface {
	Put(k *Key) (*Key, error)
	GetByHash(hash string) (*Key, error)
	Revoke(id string) error
}

// MemoryStore is an in-process Store for single-node deployments and
// tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Key
	byHash map[string]string // hash -> id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Key), byHash: make(map[string]string)}
}

func (s *MemoryStore) Put(k *Key) (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	cp := *k
	s.byID[cp.ID] = &cp
	s.byHash[cp.KeyHash] = cp.ID
	out := cp
	return &out, nil
}

func (s *MemoryStore) GetByHash(hash string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.RevokedAt = &now
	return nil
}
