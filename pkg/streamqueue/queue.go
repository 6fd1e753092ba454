// Package streamqueue implements the durable buffered pipeline between the
// ingest edge and the batch writer (spec.md §4.3): two logical streams,
// "main" and "dlq", one consumer group, and a backpressure signal driven by
// stream length. RedisQueue backs the cloud deployment; MemoryQueue backs
// single-node deployments and tests against the same contract.
package streamqueue

import (
	"context"
	"errors"
	"time"
)

// DefaultBackpressureThreshold is the default streamLength() ceiling above
// which the ingest edge must refuse new requests (spec.md §4.3, env
// overridable via INGEST_BACKPRESSURE_THRESHOLD).
const DefaultBackpressureThreshold = 100_000

// ErrBackpressure is returned by Publish/PublishBatch once streamLength
// reaches the configured threshold.
var ErrBackpressure = errors.New("streamqueue: backpressure threshold exceeded")

// Message is one enqueued item: an opaque payload plus the bookkeeping the
// queue needs to track delivery and retries.
type Message struct {
	Offset   string
	TenantID string
	Payload  []byte
	Attempts int
}

// Queue is the shared contract both backends satisfy. Offsets are opaque
// strings (Redis stream IDs for RedisQueue, monotonic counters rendered as
// strings for MemoryQueue).
type Queue interface {
	// Publish appends one message to "main" and returns its offset.
	Publish(ctx context.Context, tenantID string, payload []byte) (offset string, err error)

	// PublishBatch is a pipelined equivalent of repeated Publish calls.
	PublishBatch(ctx context.Context, tenantID string, payloads [][]byte) (offsets []string, err error)

	// ReadBatch reads up to count undelivered messages from "main" for the
	// given consumer, blocking up to timeout if none are immediately
	// available.
	ReadBatch(ctx context.Context, group, consumer string, count int, timeout time.Duration) ([]Message, error)

	// Ack acknowledges successful processing of offset, removing it from
	// the group's pending-entries list.
	Ack(ctx context.Context, group, offset string) error

	// MoveToDLQ moves the message at offset from "main" to "dlq" with a
	// reason, and acks it on "main" so it stops being redelivered.
	MoveToDLQ(ctx context.Context, group, offset, reason string) error

	// StreamLength reports the current length of "main"; used to drive
	// backpressure (spec.md P10).
	StreamLength(ctx context.Context) (int64, error)
}

// CheckBackpressure is the shared gate the ingest edge calls before
// accepting a batch: spec.md §4.3's "when length ≥ threshold the ingest
// edge must refuse new requests with a temporary-unavailable signal".
func CheckBackpressure(ctx context.Context, q Queue, threshold int64) error {
	if threshold <= 0 {
		threshold = DefaultBackpressureThreshold
	}
	n, err := q.StreamLength(ctx)
	if err != nil {
		return err
	}
	if n >= threshold {
		return ErrBackpressure
	}
	return nil
}
