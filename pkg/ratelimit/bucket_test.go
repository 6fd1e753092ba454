package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowsUpToCapacityThenRejects(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(LimiterConfig{}, func() time.Time { return clock }, nil)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("key1", 3), "token %d should be allowed", i)
	}
	assert.False(t, l.Allow("key1", 3), "bucket should be empty after capacity tokens")
}

func TestLimiter_RefillsToCapacityAfterInterval(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(LimiterConfig{RefillInterval: time.Minute}, func() time.Time { return clock }, nil)

	require.True(t, l.Allow("key1", 2))
	require.True(t, l.Allow("key1", 2))
	require.False(t, l.Allow("key1", 2))

	clock = clock.Add(time.Minute)
	assert.True(t, l.Allow("key1", 2), "should refill to capacity once the interval elapses")
	assert.True(t, l.Allow("key1", 2))
	assert.False(t, l.Allow("key1", 2))
}

func TestLimiter_DefaultsCapacityWhenNonPositive(t *testing.T) {
	l := NewLimiter(LimiterConfig{}, nil, nil)
	for i := 0; i < DefaultCapacity; i++ {
		assert.True(t, l.Allow("key1", 0))
	}
	assert.False(t, l.Allow("key1", 0))
}

func TestLimiter_TracksKeysIndependently(t *testing.T) {
	l := NewLimiter(LimiterConfig{}, nil, nil)
	assert.True(t, l.Allow("key1", 1))
	assert.False(t, l.Allow("key1", 1))
	assert.True(t, l.Allow("key2", 1), "a different key must have its own bucket")
}

func TestLimiter_SweepEvictsIdleBuckets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(LimiterConfig{RefillInterval: time.Minute, IdleTTL: 2 * time.Minute}, func() time.Time { return clock }, nil)
	require.True(t, l.Allow("key1", 5))

	clock = clock.Add(3 * time.Minute)
	l.sweep()

	l.mu.Lock()
	_, stillPresent := l.buckets["key1"]
	l.mu.Unlock()
	assert.False(t, stillPresent, "bucket idle beyond IdleTTL should be swept")
}

func TestLimiter_StartStopRunsSweepLoop(t *testing.T) {
	l := NewLimiter(LimiterConfig{RefillInterval: time.Millisecond, IdleTTL: 2 * time.Millisecond}, nil, nil)
	require.True(t, l.Allow("key1", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	l.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	l.Stop()
}
