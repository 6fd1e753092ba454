// Package batchwriter implements C4: the drain loop between the queue and
// the event store in cloud-mode deployments (spec.md §4.4). It reads
// batches of un-hashed event drafts from the queue, groups them by tenant
// and session, computes cost enrichment and the hash chain, and writes
// them through the store — retrying on failure and moving to the DLQ
// after maxRetries.
package batchwriter

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/streamqueue"
)

// DefaultBatchSize is spec.md §4.4's default read size.
const DefaultBatchSize = 500

// DefaultMaxRetries is spec.md §4.4's default retry budget before DLQ.
const DefaultMaxRetries = 3

// Stats are the counters spec.md §4.4 requires the writer to expose.
type Stats struct {
	Processed uint64
	Failed    uint64
	DLQd      uint64
}

// EventWriter is the subset of store.Store the writer needs.
type EventWriter interface {
	GetLastEventHash(ctx context.Context, tenantID, sessionID string) (*string, error)
	InsertEvents(ctx context.Context, tenantID string, events []*eventmodel.Event) error
}

// Writer drains a streamqueue.Queue into an EventWriter.
type Writer struct {
	queue      streamqueue.Queue
	store      EventWriter
	modelCosts map[string]ModelCost
	batchSize  int
	maxRetries int
	group      string
	consumer   string

	processed atomic.Uint64
	failed    atomic.Uint64
	dlqd      atomic.Uint64

	attemptsMu sync.Mutex
	attempts   map[string]int // offset -> retry count, used by backends (like Redis) with no native counter
}

// Config configures a Writer; zero values fall back to spec.md defaults.
type Config struct {
	BatchSize  int
	MaxRetries int
	Group      string
	Consumer   string
	ModelCosts map[string]ModelCost
}

// New constructs a Writer.
func New(q streamqueue.Queue, s EventWriter, cfg Config) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Group == "" {
		cfg.Group = "ingestion_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "writer-1"
	}
	if cfg.ModelCosts == nil {
		cfg.ModelCosts = DefaultModelCosts
	}
	return &Writer{
		queue:      q,
		store:      s,
		modelCosts: cfg.ModelCosts,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		group:      cfg.Group,
		consumer:   cfg.Consumer,
		attempts:   make(map[string]int),
	}
}

// Stats returns a snapshot of the processed/failed/dlqd counters.
func (w *Writer) Stats() Stats {
	return Stats{Processed: w.processed.Load(), Failed: w.failed.Load(), DLQd: w.dlqd.Load()}
}

// Run loops reading batches and draining them until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msgs, err := w.queue.ReadBatch(ctx, w.group, w.consumer, w.batchSize, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("batchwriter: read batch failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		w.drain(ctx, msgs)
	}
}

// drain groups msgs by tenant then session and writes each group
// independently, so one group's failure never poisons another
// (spec.md §4.4).
func (w *Writer) drain(ctx context.Context, msgs []streamqueue.Message) {
	type key struct{ tenantID, sessionID string }
	groups := make(map[key][]streamqueue.Message)
	order := make([]key, 0)

	for _, m := range msgs {
		var draft eventmodel.Event
		if err := json.Unmarshal(m.Payload, &draft); err != nil {
			w.fail(ctx, m, "malformed event draft: "+err.Error())
			continue
		}
		k := key{draft.TenantID, draft.SessionID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], m)
	}

	for _, k := range order {
		w.drainGroup(ctx, k.tenantID, k.sessionID, groups[k])
	}
}

func (w *Writer) drainGroup(ctx context.Context, tenantID, sessionID string, msgs []streamqueue.Message) {
	lastHash, err := w.store.GetLastEventHash(ctx, tenantID, sessionID)
	if err != nil {
		for _, m := range msgs {
			w.fail(ctx, m, "lookup last hash: "+err.Error())
		}
		return
	}

	events := make([]*eventmodel.Event, 0, len(msgs))
	for _, m := range msgs {
		var e eventmodel.Event
		if err := json.Unmarshal(m.Payload, &e); err != nil {
			w.fail(ctx, m, "malformed event draft: "+err.Error())
			continue
		}
		w.enrich(&e)
		e.PrevHash = lastHash
		hash, err := eventmodel.ComputeHash(&e)
		if err != nil {
			w.fail(ctx, m, "compute hash: "+err.Error())
			continue
		}
		e.Hash = hash
		lastHash = &hash
		events = append(events, &e)
	}
	if len(events) == 0 {
		return
	}

	if err := w.store.InsertEvents(ctx, tenantID, events); err != nil {
		for _, m := range msgs {
			w.fail(ctx, m, "insert: "+err.Error())
		}
		return
	}

	for _, m := range msgs {
		if err := w.queue.Ack(ctx, w.group, m.Offset); err != nil {
			slog.Warn("batchwriter: ack failed", "offset", m.Offset, "error", err)
		}
		w.processed.Add(1)
	}
}

// enrich attaches a costUsd field to llm_call/llm_response payloads using
// the MODEL_COSTS prefix-match table (spec.md §4.4). It never touches the
// session aggregate's cost ledger — only explicit cost_tracked events do,
// per the store's aggregate rule.
func (w *Writer) enrich(e *eventmodel.Event) {
	if e.EventType != eventmodel.EventLLMCall && e.EventType != eventmodel.EventLLMResponse {
		return
	}
	model, _ := eventmodel.StringField(e.Payload, "model")
	if model == "" {
		return
	}
	cost, ok := LookupModelCost(w.modelCosts, model)
	if !ok {
		return
	}
	in, _ := eventmodel.IntField(e.Payload, "inputTokens")
	out, _ := eventmodel.IntField(e.Payload, "outputTokens")
	cr, _ := eventmodel.IntField(e.Payload, "cacheReadTokens")
	cw, _ := eventmodel.IntField(e.Payload, "cacheWriteTokens")
	e.Payload["costUsd"] = UsageCostUSD(cost, in, out, cr, cw)
}

func (w *Writer) fail(ctx context.Context, m streamqueue.Message, reason string) {
	w.failed.Add(1)
	attempts := w.bumpAttempts(m.Offset)
	if attempts >= w.maxRetries {
		if err := w.queue.MoveToDLQ(ctx, w.group, m.Offset, reason); err != nil {
			slog.Error("batchwriter: move to dlq failed", "offset", m.Offset, "error", err)
		}
		w.dlqd.Add(1)
		return
	}
	slog.Warn("batchwriter: event failed, will retry", "offset", m.Offset, "attempt", attempts, "reason", reason)
}

func (w *Writer) bumpAttempts(offset string) int {
	w.attemptsMu.Lock()
	defer w.attemptsMu.Unlock()
	w.attempts[offset]++
	return w.attempts[offset]
}
