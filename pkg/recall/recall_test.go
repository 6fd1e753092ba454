package recall

import (
	"context"
	"testing"

	"github.com/agentlens/backend/pkg/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store *embedding.MemoryStore, tenantID, sourceID string, st embedding.SourceType, vec []float32) {
	t.Helper()
	err := store.Upsert(context.Background(), &embedding.Embedding{
		ID:          sourceID,
		TenantID:    tenantID,
		SourceType:  st,
		SourceID:    sourceID,
		ContentHash: sourceID,
		TextContent: sourceID,
		Vector:      vec,
		Model:       "fake",
		Dimensions:  len(vec),
	})
	require.NoError(t, err)
}

func TestSearch_RanksByDescendingCosineSimilarity(t *testing.T) {
	store := embedding.NewMemoryStore()
	seed(t, store, "t1", "exact", embedding.SourceEvent, []float32{1, 0, 0})
	seed(t, store, "t1", "close", embedding.SourceEvent, []float32{0.9, 0.1, 0})
	seed(t, store, "t1", "orthogonal", embedding.SourceEvent, []float32{0, 1, 0})

	s := New(store)
	matches, err := s.Search(context.Background(), Query{TenantID: "t1", MinScore: 0.5}, []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "exact", matches[0].Embedding.SourceID)
	assert.Equal(t, "close", matches[1].Embedding.SourceID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestSearch_FiltersByTenant(t *testing.T) {
	store := embedding.NewMemoryStore()
	seed(t, store, "t1", "mine", embedding.SourceEvent, []float32{1, 0})
	seed(t, store, "t2", "theirs", embedding.SourceEvent, []float32{1, 0})

	s := New(store)
	matches, err := s.Search(context.Background(), Query{TenantID: "t1", MinScore: 0.1}, []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "mine", matches[0].Embedding.SourceID)
}

func TestSearch_RespectsLimit(t *testing.T) {
	store := embedding.NewMemoryStore()
	for i := 0; i < 5; i++ {
		seed(t, store, "t1", string(rune('a'+i)), embedding.SourceEvent, []float32{1, 0})
	}
	s := New(store)
	matches, err := s.Search(context.Background(), Query{TenantID: "t1", MinScore: 0.1, Limit: 2}, []float32{1, 0})
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestSearch_DropsBelowMinScore(t *testing.T) {
	store := embedding.NewMemoryStore()
	seed(t, store, "t1", "orthogonal", embedding.SourceEvent, []float32{0, 1})
	s := New(store)
	matches, err := s.Search(context.Background(), Query{TenantID: "t1", MinScore: 0.9}, []float32{1, 0})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCosineSimilarity_MismatchedDimensionsReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}

// fakeNearestStore stands in for embedding.WeaviateStore to verify Search
// pushes the scan down to NearestByVector rather than calling Query.
type fakeNearestStore struct {
	embedding.Store
	nearestCalled bool
	rows          []*embedding.Embedding
}

func (f *fakeNearestStore) NearestByVector(ctx context.Context, tenantID string, vector []float32, limit int) ([]*embedding.Embedding, error) {
	f.nearestCalled = true
	return f.rows, nil
}

func TestSearch_PrefersNearestByVectorWhenStoreSupportsIt(t *testing.T) {
	fake := &fakeNearestStore{
		rows: []*embedding.Embedding{
			{SourceID: "exact", SourceType: embedding.SourceEvent, Vector: []float32{1, 0, 0}},
		},
	}
	s := New(fake)
	matches, err := s.Search(context.Background(), Query{TenantID: "t1", MinScore: 0.5}, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.True(t, fake.nearestCalled)
	require.Len(t, matches, 1)
	assert.Equal(t, "exact", matches[0].Embedding.SourceID)
}
