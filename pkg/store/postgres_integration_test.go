//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agentlens/backend/pkg/eventmodel"
)

// newTestPostgresStore spins up an ephemeral Postgres container, applies
// PostgresStore's own embedded migrations, and returns a ready store —
// mirroring the teacher's test/database.NewTestClient, minus the ent
// schema-create step since PostgresStore applies its own migrations on
// construction (see runMigrations in postgres.go).
func newTestPostgresStore(t *testing.T) *PostgresStore {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("agentlens_test"),
		postgres.WithUsername("agentlens"),
		postgres.WithPassword("agentlens"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := Config{
		Host:     host,
		Port:     port.Int(),
		User:     "agentlens",
		Password: "agentlens",
		Database: "agentlens_test",
		SSLMode:  "disable",
	}
	s, err := NewPostgresStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestPostgresStore_S1_TwoEventBatch is the Postgres-backed analogue of
// TestMemoryStore_S1_TwoEventBatch: same chain/session-aggregate
// invariants must hold against the real schema, not just the in-memory
// implementation.
func TestPostgresStore_S1_TwoEventBatch(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e1 := mkEvent("s1", "a1", eventmodel.EventToolCall, eventmodel.SeverityInfo, nil, now)
	e2 := mkEvent("s1", "a1", eventmodel.EventToolResponse, eventmodel.SeverityInfo, &e1.Hash, now.Add(time.Second))

	require.NoError(t, s.InsertEvents(ctx, "t1", []*eventmodel.Event{e1, e2}))

	sess, err := s.GetSession(ctx, "t1", "s1")
	require.NoError(t, err)
	require.EqualValues(t, 2, sess.EventCount)
	require.Equal(t, SessionActive, sess.Status)

	tl, err := s.GetSessionTimeline(ctx, "t1", "s1")
	require.NoError(t, err)
	require.True(t, tl.ChainValid)
	require.Nil(t, tl.Events[0].PrevHash)
	require.Equal(t, e1.Hash, *tl.Events[1].PrevHash)
}

// TestPostgresStore_GetLastEventHash_EmptySession covers the O(1)
// last-hash lookup InsertEvents relies on to chain a session's next
// batch without loading its full timeline.
func TestPostgresStore_GetLastEventHash_EmptySession(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	h, err := s.GetLastEventHash(ctx, "t1", "nonexistent")
	require.NoError(t, err)
	require.Nil(t, h)

	now := time.Now().UTC()
	e1 := mkEvent("s2", "a1", eventmodel.EventToolCall, eventmodel.SeverityInfo, nil, now)
	require.NoError(t, s.InsertEvents(ctx, "t1", []*eventmodel.Event{e1}))

	h, err = s.GetLastEventHash(ctx, "t1", "s2")
	require.NoError(t, err)
	require.NotNil(t, h)
	require.Equal(t, e1.Hash, *h)
}

// TestPostgresStore_Purge_RemovesAllTenantData exercises the compliance
// data-subject-rights path (spec.md §4.13) against the real schema.
func TestPostgresStore_Purge_RemovesAllTenantData(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e1 := mkEvent("s3", "a1", eventmodel.EventToolCall, eventmodel.SeverityInfo, nil, now)
	require.NoError(t, s.InsertEvents(ctx, "t2", []*eventmodel.Event{e1}))

	require.NoError(t, s.Purge(ctx, "t2"))

	_, err := s.GetSession(ctx, "t2", "s3")
	require.ErrorIs(t, err, ErrNotFound)
}
