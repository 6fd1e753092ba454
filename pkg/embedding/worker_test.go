package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls int
	err   error
	vec   []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, string, int, error) {
	f.calls++
	if f.err != nil {
		return nil, "", 0, f.err
	}
	return f.vec, "fake-model", len(f.vec), nil
}

func runUntilEmpty(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	// drain synchronously by processing until the channel empties, then cancel.
	for len(w.jobs) > 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done
}

func TestWorker_ComputesAndStoresNewEmbedding(t *testing.T) {
	store := NewMemoryStore()
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	w := New(store, embedder, 10)

	ok := w.Submit("tenant-a", SourceEvent, "evt-1", "hello world")
	require.True(t, ok)
	runUntilEmpty(t, w)

	got, err := store.FindByContentHash(context.Background(), "tenant-a", hashOf("hello world"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, SourceEvent, got.SourceType)
	assert.Equal(t, "evt-1", got.SourceID)
	assert.Equal(t, 3, got.Dimensions)
	assert.Equal(t, 1, embedder.calls)
}

func TestWorker_DedupSkipsRecompute(t *testing.T) {
	store := NewMemoryStore()
	embedder := &fakeEmbedder{vec: []float32{0.5}}
	w := New(store, embedder, 10)

	w.Submit("tenant-a", SourceEvent, "evt-1", "same text")
	runUntilEmpty(t, w)
	w.Submit("tenant-a", SourceSession, "sess-9", "same text")
	runUntilEmpty(t, w)

	got, err := store.FindByContentHash(context.Background(), "tenant-a", hashOf("same text"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, SourceSession, got.SourceType, "source fields should be overwritten on dedup hit")
	assert.Equal(t, "sess-9", got.SourceID)
	assert.Equal(t, 1, embedder.calls, "embedder must not be called again for identical content")
}

func TestWorker_DropsJobOnEmbedderFailure(t *testing.T) {
	store := NewMemoryStore()
	embedder := &fakeEmbedder{err: errors.New("boom")}
	w := New(store, embedder, 10)

	w.Submit("tenant-a", SourceEvent, "evt-1", "will fail")
	runUntilEmpty(t, w)

	got, err := store.FindByContentHash(context.Background(), "tenant-a", hashOf("will fail"))
	require.NoError(t, err)
	assert.Nil(t, got, "failed embedding must not be persisted")
}

func TestWorker_SubmitDropsWhenQueueFull(t *testing.T) {
	store := NewMemoryStore()
	embedder := &fakeEmbedder{vec: []float32{1}}
	w := New(store, embedder, 1)

	// Fill the single slot without a running worker to drain it.
	ok1 := w.Submit("t", SourceEvent, "1", "a")
	ok2 := w.Submit("t", SourceEvent, "2", "b")
	assert.True(t, ok1)
	assert.False(t, ok2, "submit must drop rather than block when queue is full")
}

func TestWorker_SubmitIgnoresEmptyText(t *testing.T) {
	store := NewMemoryStore()
	w := New(store, &fakeEmbedder{}, 10)
	assert.False(t, w.Submit("t", SourceEvent, "1", ""))
}
