package streamqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mainStream = "agentlens:events:main"
	dlqStream  = "agentlens:events:dlq"
	payloadKey = "payload"
	tenantKey  = "tenantId"
)

// RedisQueue implements Queue on top of Redis Streams: publish/readBatch/
// ack/moveToDlq map onto XADD/XREADGROUP/XACK/XADD+XACK, matching spec.md
// §4.3's cloud-mode collaborator contract.
type RedisQueue struct {
	rdb   *redis.Client
	group string
}

// NewRedisQueue creates the consumer group on mainStream if it doesn't
// already exist ("ingestion_workers" per spec.md §4.3) and returns a ready
// queue.
func NewRedisQueue(ctx context.Context, rdb *redis.Client, group string) (*RedisQueue, error) {
	if group == "" {
		group = "ingestion_workers"
	}
	q := &RedisQueue{rdb: rdb, group: group}
	err := rdb.XGroupCreateMkStream(ctx, mainStream, group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= len("BUSYGROUP") && err.Error()[:9] == "BUSYGROUP"
}

func (q *RedisQueue) Publish(ctx context.Context, tenantID string, payload []byte) (string, error) {
	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: mainStream,
		Values: map[string]any{tenantKey: tenantID, payloadKey: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

func (q *RedisQueue) PublishBatch(ctx context.Context, tenantID string, payloads [][]byte) ([]string, error) {
	pipe := q.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(payloads))
	for i, p := range payloads {
		cmds[i] = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: mainStream,
			Values: map[string]any{tenantKey: tenantID, payloadKey: p},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("xadd pipeline: %w", err)
	}
	offsets := make([]string, len(cmds))
	for i, c := range cmds {
		offsets[i] = c.Val()
	}
	return offsets, nil
}

func (q *RedisQueue) ReadBatch(ctx context.Context, group, consumer string, count int, timeout time.Duration) ([]Message, error) {
	res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{mainStream, ">"},
		Count:    int64(count),
		Block:    timeout,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var out []Message
	for _, stream := range res {
		for _, xm := range stream.Messages {
			tenantID, _ := xm.Values[tenantKey].(string)
			payload := valueToBytes(xm.Values[payloadKey])
			out = append(out, Message{Offset: xm.ID, TenantID: tenantID, Payload: payload})
		}
	}
	return out, nil
}

func valueToBytes(v any) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		return nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, group, offset string) error {
	if err := q.rdb.XAck(ctx, mainStream, group, offset).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// MoveToDLQ copies the message to the dlq stream with its failure reason,
// then acks the original so it is not redelivered by XREADGROUP/XCLAIM.
func (q *RedisQueue) MoveToDLQ(ctx context.Context, group, offset, reason string) error {
	msgs, err := q.rdb.XRange(ctx, mainStream, offset, offset).Result()
	if err != nil {
		return fmt.Errorf("xrange: %w", err)
	}
	if len(msgs) == 1 {
		values := msgs[0].Values
		values["reason"] = reason
		values["originalOffset"] = offset
		if _, err := q.rdb.XAdd(ctx, &redis.XAddArgs{Stream: dlqStream, Values: values}).Result(); err != nil {
			return fmt.Errorf("xadd dlq: %w", err)
		}
	}
	return q.Ack(ctx, group, offset)
}

func (q *RedisQueue) StreamLength(ctx context.Context) (int64, error) {
	n, err := q.rdb.XLen(ctx, mainStream).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen: %w", err)
	}
	return n, nil
}

// ClaimStale reclaims messages pending for longer than minIdle without an
// ack, so a crashed consumer's in-flight work is eventually retried by
// another consumer — spec.md §4.4's retry loop depends on this for
// at-least-once delivery across worker restarts.
func (q *RedisQueue) ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Message, error) {
	msgs, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   mainStream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	out := make([]Message, 0, len(msgs))
	for _, xm := range msgs {
		tenantID, _ := xm.Values[tenantKey].(string)
		out = append(out, Message{Offset: xm.ID, TenantID: tenantID, Payload: valueToBytes(xm.Values[payloadKey])})
	}
	return out, nil
}
