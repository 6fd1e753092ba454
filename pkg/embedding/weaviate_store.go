package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const weaviateClassName = "AgentLensEmbedding"

// WeaviateStore backs Store with an external Weaviate index — the
// "larger tenants" scale-out path named in spec.md §4.7, once a
// tenant's embedding table outgrows what pg_vector-less Postgres
// cosine scans can serve. Object IDs are deterministic
// (tenantID, contentHash) UUIDs so repeat Upserts of the same content
// land on the same object instead of accumulating duplicates.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore wraps an existing Weaviate client. Schema
// (class + properties) is expected to already exist — see
// EnsureSchema, called once at startup.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

// EnsureSchema creates the embedding class if it is not already
// present. Safe to call on every startup.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.Schema().ClassGetter().WithClassName(weaviateClassName).Do(ctx); err == nil {
		return nil
	}
	class := &models.Class{
		Class:      weaviateClassName,
		Vectorizer: "none", // vectors are supplied by pkg/embedding's Embedder, not computed by Weaviate
		Properties: []*models.Property{
			{Name: "tenant_id", DataType: []string{"text"}},
			{Name: "source_type", DataType: []string{"text"}},
			{Name: "source_id", DataType: []string{"text"}},
			{Name: "content_hash", DataType: []string{"text"}},
			{Name: "text_content", DataType: []string{"text"}},
			{Name: "model", DataType: []string{"text"}},
			{Name: "dimensions", DataType: []string{"int"}},
			{Name: "created_at", DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create weaviate class: %w", err)
	}
	return nil
}

// objectID derives a deterministic UUID from (tenantID, contentHash) so
// re-Upserting the same content overwrites the same Weaviate object
// instead of creating a duplicate (spec.md §3's content-addressed dedup).
func objectID(tenantID, contentHash string) uuid.UUID {
	sum := sha256.Sum256([]byte(tenantID + "\x00" + contentHash))
	return uuid.NewSHA1(uuid.NameSpaceOID, sum[:])
}

func (s *WeaviateStore) FindByContentHash(ctx context.Context, tenantID, contentHash string) (*Embedding, error) {
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"tenant_id"}).WithOperator(filters.Equal).WithValueString(tenantID),
			filters.Where().WithPath([]string{"content_hash"}).WithOperator(filters.Equal).WithValueString(contentHash),
		})

	fields := []graphql.Field{
		{Name: "tenant_id"}, {Name: "source_type"}, {Name: "source_id"},
		{Name: "content_hash"}, {Name: "text_content"}, {Name: "model"}, {Name: "dimensions"}, {Name: "created_at"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "vector"}}},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(weaviateClassName).
		WithWhere(where).
		WithFields(fields...).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate find by content hash: %w", err)
	}
	rows, err := parseEmbeddingRows(resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Upsert overwrites the object at the deterministic (tenantID,
// contentHash) UUID when it already exists, otherwise creates it —
// the Weaviate analogue of PostgresStore's ON CONFLICT DO UPDATE.
func (s *WeaviateStore) Upsert(ctx context.Context, e *Embedding) error {
	id := objectID(e.TenantID, e.ContentHash)
	props := map[string]interface{}{
		"tenant_id":    e.TenantID,
		"source_type":  string(e.SourceType),
		"source_id":    e.SourceID,
		"content_hash": e.ContentHash,
		"text_content": e.TextContent,
		"model":        e.Model,
		"dimensions":   e.Dimensions,
		"created_at":   e.CreatedAt.UnixMilli(),
	}

	existing, err := s.client.Data().ObjectsGetter().
		WithClassName(weaviateClassName).
		WithID(id.String()).
		Do(ctx)
	if err == nil && len(existing) > 0 {
		return s.client.Data().Updater().
			WithClassName(weaviateClassName).
			WithID(id.String()).
			WithVector(e.Vector).
			WithProperties(props).
			Do(ctx)
	}

	_, err = s.client.Data().Creator().
		WithClassName(weaviateClassName).
		WithID(id.String()).
		WithVector(e.Vector).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate create object: %w", err)
	}
	return nil
}

func (s *WeaviateStore) Query(ctx context.Context, tenantID string, sourceType SourceType, from, to *time.Time) ([]*Embedding, error) {
	operands := []*filters.WhereBuilder{
		filters.Where().WithPath([]string{"tenant_id"}).WithOperator(filters.Equal).WithValueString(tenantID),
	}
	if sourceType != "" {
		operands = append(operands, filters.Where().WithPath([]string{"source_type"}).WithOperator(filters.Equal).WithValueString(string(sourceType)))
	}
	if from != nil {
		operands = append(operands, filters.Where().WithPath([]string{"created_at"}).WithOperator(filters.GreaterThanEqual).WithValueInt(from.UnixMilli()))
	}
	if to != nil {
		operands = append(operands, filters.Where().WithPath([]string{"created_at"}).WithOperator(filters.LessThanEqual).WithValueInt(to.UnixMilli()))
	}
	where := filters.Where().WithOperator(filters.And).WithOperands(operands)

	fields := []graphql.Field{
		{Name: "tenant_id"}, {Name: "source_type"}, {Name: "source_id"},
		{Name: "content_hash"}, {Name: "text_content"}, {Name: "model"}, {Name: "dimensions"}, {Name: "created_at"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "vector"}}},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(weaviateClassName).
		WithWhere(where).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query: %w", err)
	}
	return parseEmbeddingRows(resp)
}

// NearestByVector runs a NearVector search, the capability PostgresStore
// cannot offer without a vector extension — this is the actual reason
// to choose the Weaviate backend once a tenant's row count makes a
// brute-force cosine scan (pkg/recall's in-process fallback) too slow.
func (s *WeaviateStore) NearestByVector(ctx context.Context, tenantID string, vector []float32, limit int) ([]*Embedding, error) {
	where := filters.Where().WithPath([]string{"tenant_id"}).WithOperator(filters.Equal).WithValueString(tenantID)
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "tenant_id"}, {Name: "source_type"}, {Name: "source_id"},
		{Name: "content_hash"}, {Name: "text_content"}, {Name: "model"}, {Name: "dimensions"}, {Name: "created_at"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "vector"}, {Name: "certainty"}}},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(weaviateClassName).
		WithWhere(where).
		WithNearVector(nearVector).
		WithFields(fields...).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate near-vector search: %w", err)
	}
	return parseEmbeddingRows(resp)
}

type weaviateGetResponse struct {
	Get struct {
		AgentLensEmbedding []struct {
			TenantID    string  `json:"tenant_id"`
			SourceType  string  `json:"source_type"`
			SourceID    string  `json:"source_id"`
			ContentHash string  `json:"content_hash"`
			TextContent string  `json:"text_content"`
			Model       string  `json:"model"`
			Dimensions  float64 `json:"dimensions"`
			CreatedAt   float64 `json:"created_at"`
			Additional  struct {
				ID     string    `json:"id"`
				Vector []float32 `json:"vector"`
			} `json:"_additional"`
		} `json:"AgentLensEmbedding"`
	} `json:"Get"`
}

// parseEmbeddingRows re-marshals the GraphQL response's loosely-typed
// Data map into weaviateGetResponse, the same round-trip
// datatypes.ParseGraphQLResponse performs in the teacher pack.
func parseEmbeddingRows(resp *models.GraphQLResponse) ([]*Embedding, error) {
	if resp == nil || len(resp.Errors) > 0 {
		if resp != nil && len(resp.Errors) > 0 {
			return nil, fmt.Errorf("weaviate graphql error: %v", resp.Errors[0].Message)
		}
		return nil, nil
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal weaviate response: %w", err)
	}
	var parsed weaviateGetResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal weaviate response: %w", err)
	}

	out := make([]*Embedding, 0, len(parsed.Get.AgentLensEmbedding))
	for _, row := range parsed.Get.AgentLensEmbedding {
		out = append(out, &Embedding{
			ID:          row.Additional.ID,
			TenantID:    row.TenantID,
			SourceType:  SourceType(row.SourceType),
			SourceID:    row.SourceID,
			ContentHash: row.ContentHash,
			TextContent: row.TextContent,
			Vector:      row.Additional.Vector,
			Model:       row.Model,
			Dimensions:  int(row.Dimensions),
			CreatedAt:   time.UnixMilli(int64(row.CreatedAt)).UTC(),
		})
	}
	return out, nil
}
