// Package recall implements C8: similarity search over stored embeddings.
// By default it loads candidate rows from the embedding store and scores
// them by cosine similarity in memory; against an embedding.WeaviateStore
// it instead pushes the nearest-neighbor search down to the index itself —
// the scale-out path spec.md §9 names once a tenant's embedding table
// grows past in-memory-scan range.
package recall

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/agentlens/backend/pkg/embedding"
)

// DefaultMinScore is the similarity floor below which a match is dropped.
const DefaultMinScore = 0.7

// DefaultLimit caps the number of results returned when the caller does
// not specify one.
const DefaultLimit = 10

// Query parameterizes a recall search.
type Query struct {
	TenantID   string
	SourceType embedding.SourceType // optional filter, "" means any
	From, To   *time.Time           // optional createdAt range
	MinScore   float64              // 0 uses DefaultMinScore
	Limit      int                  // 0 uses DefaultLimit
}

// Match pairs a stored embedding with its similarity to the query vector.
type Match struct {
	Embedding *embedding.Embedding
	Score     float64
}

// nearestVectorStore is satisfied by embedding stores that can push the
// similarity search down to the index itself (embedding.WeaviateStore),
// instead of Search loading every candidate row and scoring it in
// process. Checked via a type assertion so MemoryStore/PostgresStore
// keep working unchanged through the brute-force path below.
type nearestVectorStore interface {
	NearestByVector(ctx context.Context, tenantID string, vector []float32, limit int) ([]*embedding.Embedding, error)
}

// Searcher runs similarity search against an embedding.Store.
type Searcher struct {
	store embedding.Store
}

// New builds a Searcher over the given embedding store.
func New(store embedding.Store) *Searcher {
	return &Searcher{store: store}
}

// Search scores every candidate matching q's tenant/sourceType/time-range
// filters against queryVector, drops anything below the score floor, and
// returns the top Limit matches by descending score (ties broken by the
// candidate's original store order). When the underlying store is a
// nearestVectorStore, the scan is pushed down to it instead of loading
// every row into the process — the scale-out path spec.md §9 names.
func (s *Searcher) Search(ctx context.Context, q Query, queryVector []float32) ([]Match, error) {
	minScore := q.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var candidates []*embedding.Embedding
	var err error
	if nvs, ok := s.store.(nearestVectorStore); ok {
		candidates, err = nvs.NearestByVector(ctx, q.TenantID, queryVector, limit)
	} else {
		candidates, err = s.store.Query(ctx, q.TenantID, q.SourceType, q.From, q.To)
	}
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if q.SourceType != "" && c.SourceType != q.SourceType {
			continue
		}
		if q.From != nil && c.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && c.CreatedAt.After(*q.To) {
			continue
		}
		score := cosineSimilarity(queryVector, c.Vector)
		if score < minScore {
			continue
		}
		matches = append(matches, Match{Embedding: c, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// cosineSimilarity returns 0 for mismatched dimensions or zero vectors
// rather than erroring — a zero-vector embedding simply never matches.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
