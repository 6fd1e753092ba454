package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
)

// advisoryLockKey derives a single int64 key for pg_advisory_xact_lock from
// (tenantID, sessionID). spec.md §5 requires the store to hold an advisory
// lock on (tenantId, sessionId) for the duration of the insert transaction
// so the read-chain-write sequence in the ingest pipeline cannot interleave
// with a concurrent insert for the same session.
func advisoryLockKey(tenantID, sessionID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tenantID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(sessionID))
	return int64(h.Sum64())
}

// GetLastEventHash implements EventWriter.
func (p *PostgresStore) GetLastEventHash(ctx context.Context, tenantID, sessionID string) (*string, error) {
	var hash string
	err := p.db.QueryRowContext(ctx, `
		SELECT hash FROM events
		WHERE tenant_id = $1 AND session_id = $2
		ORDER BY seq DESC LIMIT 1`, tenantID, sessionID).Scan(&hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, newStorageError("GetLastEventHash", CauseBackend, err)
	}
	return &hash, nil
}

// InsertEvents implements EventWriter. It runs inside one transaction that
// holds an advisory lock on (tenantID, sessionID) for the whole insert,
// per spec.md §5, and upserts the session/agent aggregate rows using the
// same rules as MemoryStore.applyAggregate.
func (p *PostgresStore) InsertEvents(ctx context.Context, tenantID string, events []*eventmodel.Event) error {
	if len(events) == 0 {
		return nil
	}
	sessionID := events[0].SessionID
	agentID := events[0].AgentID
	for _, e := range events {
		if e.SessionID != sessionID {
			return newStorageError("InsertEvents", CauseConstraint, fmt.Errorf("mixed sessions in one insert"))
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return newStorageError("InsertEvents", CauseBackend, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(tenantID, sessionID)); err != nil {
		return newStorageError("InsertEvents", CauseBackend, err)
	}

	for _, e := range events {
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return newStorageError("InsertEvents", CauseConstraint, err)
		}
		var metaJSON []byte
		if e.Metadata != nil {
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return newStorageError("InsertEvents", CauseConstraint, err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (id, tenant_id, session_id, agent_id, event_type, severity, timestamp, payload, metadata, prev_hash, hash)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			e.ID, tenantID, e.SessionID, e.AgentID, string(e.EventType), string(e.Severity),
			e.Timestamp, payloadJSON, nullableJSON(metaJSON), e.PrevHash, e.Hash)
		if err != nil {
			if isUniqueViolation(err) {
				return newStorageError("InsertEvents", CauseConflict, err)
			}
			return newStorageError("InsertEvents", CauseBackend, err)
		}
	}

	if err := upsertSessionAggregate(ctx, tx, tenantID, sessionID, agentID, events); err != nil {
		return err
	}
	if err := upsertAgent(ctx, tx, tenantID, agentID, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return newStorageError("InsertEvents", CauseBackend, err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func upsertSessionAggregate(ctx context.Context, tx *sql.Tx, tenantID, sessionID, agentID string, events []*eventmodel.Event) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE tenant_id=$1 AND session_id=$2)`, tenantID, sessionID).Scan(&exists); err != nil {
		return newStorageError("InsertEvents", CauseBackend, err)
	}
	if !exists {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (tenant_id, session_id, agent_id, started_at, status)
			VALUES ($1,$2,$3,$4,'active')`, tenantID, sessionID, agentID, events[0].Timestamp)
		if err != nil {
			return newStorageError("InsertEvents", CauseBackend, err)
		}
	}

	var eventCount, toolCalls, errs, llmCalls, inTok, outTok int64
	var cost float64
	var endedAt *time.Time
	status := ""

	for _, e := range events {
		eventCount++
		switch e.EventType {
		case eventmodel.EventToolCall:
			toolCalls++
		case eventmodel.EventToolError:
			errs++
		case eventmodel.EventSessionEnded:
			t := e.Timestamp
			endedAt = &t
			if status != "error" {
				status = "completed"
			}
		}
		if e.Severity == eventmodel.SeverityCritical {
			status = "error"
		}
		if (e.Severity == eventmodel.SeverityError || e.Severity == eventmodel.SeverityCritical) && e.EventType != eventmodel.EventToolError {
			errs++
		}
		if e.EventType == eventmodel.EventLLMCall || e.EventType == eventmodel.EventLLMResponse {
			llmCalls++
			if v, ok := eventmodel.IntField(e.Payload, "inputTokens"); ok {
				inTok += v
			}
			if v, ok := eventmodel.IntField(e.Payload, "outputTokens"); ok {
				outTok += v
			}
		}
		if e.EventType == eventmodel.EventCostTracked {
			if v, ok := eventmodel.FloatField(e.Payload, "costUsd"); ok {
				cost += v
			}
		}
	}

	query := `
		UPDATE sessions SET
			event_count = event_count + $3,
			tool_call_count = tool_call_count + $4,
			error_count = error_count + $5,
			llm_call_count = llm_call_count + $6,
			total_input_tokens = total_input_tokens + $7,
			total_output_tokens = total_output_tokens + $8,
			total_cost_usd = total_cost_usd + $9`
	args := []any{tenantID, sessionID, eventCount, toolCalls, errs, llmCalls, inTok, outTok, cost}
	if status != "" {
		query += `, status = $10`
		args = append(args, status)
		if endedAt != nil {
			query += `, ended_at = $11`
			args = append(args, *endedAt)
		}
	} else if endedAt != nil {
		query += `, ended_at = $10`
		args = append(args, *endedAt)
	}
	query += ` WHERE tenant_id = $1 AND session_id = $2`

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return newStorageError("InsertEvents", CauseBackend, err)
	}
	return nil
}

func upsertAgent(ctx context.Context, tx *sql.Tx, tenantID, agentID string, events []*eventmodel.Event) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM agents WHERE tenant_id=$1 AND agent_id=$2)`, tenantID, agentID).Scan(&exists); err != nil {
		return newStorageError("InsertEvents", CauseBackend, err)
	}
	last := events[len(events)-1].Timestamp
	if !exists {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (tenant_id, agent_id, first_seen_at, last_seen_at, session_count)
			VALUES ($1,$2,$3,$4,1)`, tenantID, agentID, events[0].Timestamp, last)
		if err != nil {
			return newStorageError("InsertEvents", CauseBackend, err)
		}
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE agents SET last_seen_at = $3 WHERE tenant_id=$1 AND agent_id=$2 AND last_seen_at < $3`,
		tenantID, agentID, last)
	if err != nil {
		return newStorageError("InsertEvents", CauseBackend, err)
	}
	return nil
}

// Purge implements EventWriter.
func (p *PostgresStore) Purge(ctx context.Context, tenantID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return newStorageError("Purge", CauseBackend, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"events", "sessions", "agents"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, table), tenantID); err != nil {
			return newStorageError("Purge", CauseBackend, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return newStorageError("Purge", CauseBackend, err)
	}
	return nil
}

// SetAgentPaused implements EventWriter.
func (p *PostgresStore) SetAgentPaused(ctx context.Context, tenantID, agentID string, paused bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE agents SET paused=$3 WHERE tenant_id=$1 AND agent_id=$2`, tenantID, agentID, paused)
	if err != nil {
		return newStorageError("SetAgentPaused", CauseBackend, err)
	}
	return checkRowsAffected(res, "SetAgentPaused")
}

// SetAgentModelOverride implements EventWriter.
func (p *PostgresStore) SetAgentModelOverride(ctx context.Context, tenantID, agentID, model string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE agents SET model_override=$3 WHERE tenant_id=$1 AND agent_id=$2`, tenantID, agentID, model)
	if err != nil {
		return newStorageError("SetAgentModelOverride", CauseBackend, err)
	}
	return checkRowsAffected(res, "SetAgentModelOverride")
}

func checkRowsAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return newStorageError(op, CauseBackend, err)
	}
	if n == 0 {
		return newStorageError(op, CauseConstraint, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// pgx/stdlib surfaces a *pgconn.PgError; string-matching the SQLSTATE
	// code avoids an extra import for this one check while still catching
	// the only conflict condition InsertEvents can hit (duplicate (id,
	// tenant_id) from a retried ingest).
	return err != nil && containsAny(err.Error(), "SQLSTATE 23505", "duplicate key value")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}
