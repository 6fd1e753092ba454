package streamqueue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	offset   int64
	tenantID string
	payload  []byte
	attempts int
	acked    bool
	pending  bool // delivered to a consumer, awaiting ack
}

// MemoryQueue is an in-process Queue satisfying the same contract as
// RedisQueue, for single-node deployments and tests (spec.md §4.3: "An
// in-memory implementation must satisfy the same contract").
type MemoryQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    int64
	main    []*memEntry
	dlq     []*memEntry
	byOff   map[string]*memEntry
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{byOff: make(map[string]*memEntry)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *MemoryQueue) Publish(ctx context.Context, tenantID string, payload []byte) (string, error) {
	offs, err := q.PublishBatch(ctx, tenantID, [][]byte{payload})
	if err != nil {
		return "", err
	}
	return offs[0], nil
}

func (q *MemoryQueue) PublishBatch(ctx context.Context, tenantID string, payloads [][]byte) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	offsets := make([]string, len(payloads))
	for i, p := range payloads {
		q.next++
		e := &memEntry{offset: q.next, tenantID: tenantID, payload: p}
		q.main = append(q.main, e)
		off := strconv.FormatInt(e.offset, 10)
		q.byOff[off] = e
		offsets[i] = off
	}
	q.cond.Broadcast()
	return offsets, nil
}

// ReadBatch returns up to count not-yet-pending messages, marking them
// pending. It blocks until at least one is available or timeout elapses.
func (q *MemoryQueue) ReadBatch(ctx context.Context, group, consumer string, count int, timeout time.Duration) ([]Message, error) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		var out []Message
		for _, e := range q.main {
			if e.acked || e.pending {
				continue
			}
			e.pending = true
			out = append(out, Message{
				Offset:   strconv.FormatInt(e.offset, 10),
				TenantID: e.tenantID,
				Payload:  e.payload,
				Attempts: e.attempts,
			})
			if len(out) >= count {
				break
			}
		}
		if len(out) > 0 || timeout <= 0 || time.Now().After(deadline) {
			return out, nil
		}

		waitCh := make(chan struct{})
		go func() {
			time.Sleep(10 * time.Millisecond)
			close(waitCh)
		}()
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			q.mu.Lock()
			return nil, ctx.Err()
		case <-waitCh:
		}
		q.mu.Lock()
		if time.Now().After(deadline) {
			return nil, nil
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, group, offset string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.byOff[offset]; ok {
		e.acked = true
		e.pending = false
	}
	return nil
}

func (q *MemoryQueue) MoveToDLQ(ctx context.Context, group, offset, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byOff[offset]
	if !ok {
		return nil
	}
	e.acked = true
	e.pending = false
	dlqEntry := &memEntry{offset: e.offset, tenantID: e.tenantID, payload: e.payload, attempts: e.attempts}
	q.dlq = append(q.dlq, dlqEntry)
	return nil
}

func (q *MemoryQueue) StreamLength(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, e := range q.main {
		if !e.acked {
			n++
		}
	}
	return n, nil
}

// IncrementAttempts is used by the batch writer when a message fails and
// must be re-queued for retry counting (spec.md §4.4).
func (q *MemoryQueue) IncrementAttempts(offset string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byOff[offset]
	if !ok {
		return 0
	}
	e.attempts++
	e.pending = false
	return e.attempts
}

// DLQLen reports the number of messages currently dead-lettered; used by
// tests and diagnostics.
func (q *MemoryQueue) DLQLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq)
}
