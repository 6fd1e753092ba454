package embedding

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store is the persistence contract the worker and recall search need.
// Uniqueness is (tenantId, contentHash): content-addressed dedup per
// spec.md §3.
type Store interface {
	FindByContentHash(ctx context.Context, tenantID, contentHash string) (*Embedding, error)
	Upsert(ctx context.Context, e *Embedding) error
	Query(ctx context.Context, tenantID string, sourceType SourceType, from, to *time.Time) ([]*Embedding, error)
}

// MemoryStore is an in-process Store for single-node deployments/tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*Embedding // key: tenantID+"\x00"+contentHash
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Embedding)}
}

func key(tenantID, contentHash string) string { return tenantID + "\x00" + contentHash }

func (s *MemoryStore) FindByContentHash(ctx context.Context, tenantID, contentHash string) (*Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.rows[key(tenantID, contentHash)]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

// Upsert stores e. When a row with the same (tenantID, contentHash)
// already exists, only its source fields are overwritten — spec.md §3:
// "When the same content is re-submitted for a different source, the
// record's source fields are overwritten."
func (s *MemoryStore) Upsert(ctx context.Context, e *Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(e.TenantID, e.ContentHash)
	if existing, ok := s.rows[k]; ok {
		existing.SourceType = e.SourceType
		existing.SourceID = e.SourceID
		return nil
	}
	cp := *e
	s.rows[k] = &cp
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, tenantID string, sourceType SourceType, from, to *time.Time) ([]*Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Embedding
	for _, e := range s.rows {
		if e.TenantID != tenantID {
			continue
		}
		if sourceType != "" && e.SourceType != sourceType {
			continue
		}
		if from != nil && e.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && e.CreatedAt.After(*to) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// PostgresStore backs Store with the embeddings table from
// pkg/store/migrations (§6), reusing the same database/sql handle the
// rest of the system uses.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByContentHash(ctx context.Context, tenantID, contentHash string) (*Embedding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, source_type, source_id, content_hash, text_content, vector, model, dimensions, created_at
		FROM embeddings WHERE tenant_id=$1 AND content_hash=$2`, tenantID, contentHash)
	e, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by content hash: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, e *Embedding) error {
	vecJSON, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, tenant_id, source_type, source_id, content_hash, text_content, vector, model, dimensions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (tenant_id, content_hash) DO UPDATE SET
			source_type = EXCLUDED.source_type,
			source_id   = EXCLUDED.source_id`,
		e.ID, e.TenantID, string(e.SourceType), e.SourceID, e.ContentHash, e.TextContent, vecJSON, e.Model, e.Dimensions)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, tenantID string, sourceType SourceType, from, to *time.Time) ([]*Embedding, error) {
	where := "tenant_id = $1"
	args := []any{tenantID}
	if sourceType != "" {
		args = append(args, string(sourceType))
		where += fmt.Sprintf(" AND source_type = $%d", len(args))
	}
	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, source_type, source_id, content_hash, text_content, vector, model, dimensions, created_at
		FROM embeddings WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out []*Embedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func scanEmbedding(row interface{ Scan(dest ...any) error }) (*Embedding, error) {
	var e Embedding
	var sourceType string
	var vecJSON []byte
	if err := row.Scan(&e.ID, &e.TenantID, &sourceType, &e.SourceID, &e.ContentHash, &e.TextContent, &vecJSON, &e.Model, &e.Dimensions, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.SourceType = SourceType(sourceType)
	if err := json.Unmarshal(vecJSON, &e.Vector); err != nil {
		return nil, fmt.Errorf("unmarshal vector: %w", err)
	}
	return &e, nil
}
