package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentlens/backend/pkg/eventmodel"
)

func scanEvent(rows interface {
	Scan(dest ...any) error
}) (*eventmodel.Event, error) {
	var e eventmodel.Event
	var eventType, severity string
	var payloadRaw []byte
	var metaRaw []byte
	var prevHash sql.NullString

	if err := rows.Scan(&e.ID, &e.SessionID, &e.AgentID, &eventType, &severity, &e.Timestamp, &payloadRaw, &metaRaw, &prevHash, &e.Hash); err != nil {
		return nil, err
	}
	e.EventType = eventmodel.EventType(eventType)
	e.Severity = eventmodel.Severity(severity)
	if len(payloadRaw) > 0 {
		if err := json.Unmarshal(payloadRaw, &e.Payload); err != nil {
			return nil, err
		}
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &e.Metadata); err != nil {
			return nil, err
		}
	}
	if prevHash.Valid {
		h := prevHash.String
		e.PrevHash = &h
	}
	return &e, nil
}

const eventColumns = `id, session_id, agent_id, event_type, severity, timestamp, payload, metadata, prev_hash, hash`

// GetEvent implements EventReader.
func (p *PostgresStore) GetEvent(ctx context.Context, tenantID, id string) (*eventmodel.Event, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("GetEvent", CauseBackend, err)
	}
	return e, nil
}

// GetSessionTimeline implements EventReader, including the chain-validity
// check spec.md §4.2 requires reads to perform rather than hide.
func (p *PostgresStore) GetSessionTimeline(ctx context.Context, tenantID, sessionID string) (*Timeline, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE tenant_id=$1 AND session_id=$2 ORDER BY timestamp ASC, seq ASC`, tenantID, sessionID)
	if err != nil {
		return nil, newStorageError("GetSessionTimeline", CauseBackend, err)
	}
	defer rows.Close()

	var events []*eventmodel.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, newStorageError("GetSessionTimeline", CauseBackend, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("GetSessionTimeline", CauseBackend, err)
	}

	valid := true
	for i, e := range events {
		if i == 0 {
			if e.PrevHash != nil {
				valid = false
			}
			continue
		}
		if e.PrevHash == nil || *e.PrevHash != events[i-1].Hash {
			valid = false
		}
	}

	return &Timeline{Events: events, ChainValid: valid}, nil
}

// QueryEvents implements EventReader.
func (p *PostgresStore) QueryEvents(ctx context.Context, tenantID string, filter EventFilter) (*EventPage, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(clause string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.SessionID != "" {
		add("session_id = $%d", filter.SessionID)
	}
	if filter.AgentID != "" {
		add("agent_id = $%d", filter.AgentID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		add("event_type = ANY($%d)", pqStringArray(types))
	}
	if len(filter.Severities) > 0 {
		sevs := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			sevs[i] = string(s)
		}
		add("severity = ANY($%d)", pqStringArray(sevs))
	}
	if filter.From != nil {
		add("timestamp >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("timestamp <= $%d", *filter.To)
	}
	if filter.PayloadLike != "" {
		add("payload::text LIKE $%d", "%"+filter.PayloadLike+"%")
	}

	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM events WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, newStorageError("QueryEvents", CauseBackend, err)
	}

	order := "ASC"
	if filter.OrderDesc {
		order = "DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset

	queryArgs := append(append([]any{}, args...), limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY timestamp %s LIMIT $%d OFFSET $%d`,
		eventColumns, whereSQL, order, len(queryArgs)-1, len(queryArgs))

	rows, err := p.db.QueryContext(ctx, q, queryArgs...)
	if err != nil {
		return nil, newStorageError("QueryEvents", CauseBackend, err)
	}
	defer rows.Close()

	var events []*eventmodel.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, newStorageError("QueryEvents", CauseBackend, err)
		}
		events = append(events, e)
	}

	return &EventPage{
		Events:     events,
		Total:      total,
		HasMore:    offset+len(events) < total,
		ChainValid: true,
	}, nil
}

// pqStringArray renders a Go string slice as a Postgres text[] literal
// understood by ANY($n); avoids a dependency on lib/pq's array helpers.
func pqStringArray(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

// GetSession implements EventReader.
func (p *PostgresStore) GetSession(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT tenant_id, session_id, agent_id, agent_name, started_at, ended_at, status,
		       event_count, tool_call_count, error_count, llm_call_count,
		       total_input_tokens, total_output_tokens, total_cost_usd, tags
		FROM sessions WHERE tenant_id=$1 AND session_id=$2`, tenantID, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("GetSession", CauseBackend, err)
	}
	return sess, nil
}

func scanSession(row interface{ Scan(dest ...any) error }) (*Session, error) {
	var s Session
	var status string
	var endedAt sql.NullTime
	var tagsRaw []byte
	if err := row.Scan(&s.TenantID, &s.SessionID, &s.AgentID, &s.AgentName, &s.StartedAt, &endedAt, &status,
		&s.EventCount, &s.ToolCallCount, &s.ErrorCount, &s.LLMCallCount,
		&s.TotalInputTokens, &s.TotalOutputTokens, &s.TotalCostUsd, &tagsRaw); err != nil {
		return nil, err
	}
	s.Status = SessionStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	if len(tagsRaw) > 0 {
		_ = json.Unmarshal(tagsRaw, &s.Tags)
	}
	return &s, nil
}

// QuerySessions implements EventReader.
func (p *PostgresStore) QuerySessions(ctx context.Context, tenantID string, filter SessionFilter) (*SessionPage, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(clause string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.AgentID != "" {
		add("agent_id = $%d", filter.AgentID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.From != nil {
		add("started_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("started_at <= $%d", *filter.To)
	}
	if len(filter.Tags) > 0 {
		add("tags ?| $%d", pqStringArray(filter.Tags))
	}

	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, newStorageError("QuerySessions", CauseBackend, err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	queryArgs := append(append([]any{}, args...), limit, filter.Offset)
	q := fmt.Sprintf(`
		SELECT tenant_id, session_id, agent_id, agent_name, started_at, ended_at, status,
		       event_count, tool_call_count, error_count, llm_call_count,
		       total_input_tokens, total_output_tokens, total_cost_usd, tags
		FROM sessions WHERE %s ORDER BY started_at ASC LIMIT $%d OFFSET $%d`,
		whereSQL, len(queryArgs)-1, len(queryArgs))

	rows, err := p.db.QueryContext(ctx, q, queryArgs...)
	if err != nil {
		return nil, newStorageError("QuerySessions", CauseBackend, err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, newStorageError("QuerySessions", CauseBackend, err)
		}
		sessions = append(sessions, s)
	}

	return &SessionPage{Sessions: sessions, Total: total, HasMore: filter.Offset+len(sessions) < total}, nil
}

// ListAgents implements EventReader.
func (p *PostgresStore) ListAgents(ctx context.Context, tenantID string) ([]*Agent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT tenant_id, agent_id, name, first_seen_at, last_seen_at, session_count, paused, model_override
		FROM agents WHERE tenant_id=$1 ORDER BY agent_id ASC`, tenantID)
	if err != nil {
		return nil, newStorageError("ListAgents", CauseBackend, err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, newStorageError("ListAgents", CauseBackend, err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

func scanAgent(rows interface{ Scan(dest ...any) error }) (*Agent, error) {
	var a Agent
	if err := rows.Scan(&a.TenantID, &a.AgentID, &a.Name, &a.FirstSeenAt, &a.LastSeenAt, &a.SessionCount, &a.Paused, &a.ModelOverride); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAgent implements EventReader.
func (p *PostgresStore) GetAgent(ctx context.Context, tenantID, agentID string) (*Agent, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT tenant_id, agent_id, name, first_seen_at, last_seen_at, session_count, paused, model_override
		FROM agents WHERE tenant_id=$1 AND agent_id=$2`, tenantID, agentID)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("GetAgent", CauseBackend, err)
	}
	return a, nil
}
