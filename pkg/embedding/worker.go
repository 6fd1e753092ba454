package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/google/uuid"
)

// DefaultQueueCapacity is spec.md §4.7's default bounded queue size.
const DefaultQueueCapacity = 1000

// Worker is the single-goroutine embedding consumer. Submitting to a full
// queue drops the job rather than blocking the caller (spec.md §4.6/§4.7
// backpressure policy: "bounded and drops rather than blocks if full").
type Worker struct {
	jobs     chan Job
	store    Store
	embedder Embedder
}

// New creates a Worker with the given queue capacity (0 uses the default).
func New(store Store, embedder Embedder, capacity int) *Worker {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Worker{jobs: make(chan Job, capacity), store: store, embedder: embedder}
}

// Submit enqueues a job, returning false if the queue is full (job
// dropped — acceptable loss per spec.md §4.7, recoverable via
// resubmission keyed by content hash).
func (w *Worker) Submit(tenantID string, sourceType SourceType, sourceID, textContent string) bool {
	if textContent == "" {
		return false
	}
	select {
	case w.jobs <- Job{TenantID: tenantID, SourceType: sourceType, SourceID: sourceID, TextContent: textContent}:
		return true
	default:
		slog.Warn("embedding: queue full, dropping job", "tenant_id", tenantID, "source_type", sourceType, "source_id", sourceID)
		return false
	}
}

// Run drains jobs until ctx is cancelled. Any unprocessed item left in the
// channel at that point is lost by design (spec.md §4.7).
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			w.process(ctx, job)
		}
	}
}

func hashOf(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (w *Worker) process(ctx context.Context, job Job) {
	contentHash := hashOf(job.TextContent)

	existing, err := w.store.FindByContentHash(ctx, job.TenantID, contentHash)
	if err != nil {
		slog.Error("embedding: lookup by content hash failed", "error", err)
		return
	}
	if existing != nil {
		existing.SourceType = job.SourceType
		existing.SourceID = job.SourceID
		if err := w.store.Upsert(ctx, existing); err != nil {
			slog.Error("embedding: patch existing row failed", "error", err)
		}
		return
	}

	vector, model, dims, err := w.embedder.Embed(ctx, job.TextContent)
	if err != nil {
		// Dropped after logging; never retried on the happy path — a
		// later submission with the same content recovers it.
		slog.Error("embedding: compute failed, dropping job", "error", err, "tenant_id", job.TenantID)
		return
	}

	e := &Embedding{
		ID:          uuid.NewString(),
		TenantID:    job.TenantID,
		SourceType:  job.SourceType,
		SourceID:    job.SourceID,
		ContentHash: contentHash,
		TextContent: job.TextContent,
		Vector:      vector,
		Model:       model,
		Dimensions:  dims,
	}
	if err := w.store.Upsert(ctx, e); err != nil {
		slog.Error("embedding: store failed", "error", err)
	}
}
