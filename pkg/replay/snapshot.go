// Package replay implements C15: reconstructing a single, self-contained
// diagnostic view of a session — its full event timeline, the owning
// agent's current paused/model-override state, and any alert history
// that touched that agent — the way an operator would need it laid out
// while investigating an incident.
//
// Modeled on pkg/services.TimelineService's timeline assembly and
// pkg/agent/context.BuildStageContext's idiom of bundling several
// already-available pieces into one reviewable bundle, generalized from
// a prompt string into a structured snapshot.
package replay

import (
	"context"
	"fmt"

	"github.com/agentlens/backend/pkg/alerts"
	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/store"
)

// DiagnosticSnapshot is everything needed to explain what a session did
// and why the owning agent is in its current state.
type DiagnosticSnapshot struct {
	TenantID     string
	SessionID    string
	Session      *store.Session
	Timeline     []*eventmodel.Event
	ChainValid   bool
	Agent        *store.Agent
	AlertHistory []*alerts.HistoryRow
}

// AlertHistoryReader is the narrow slice of alerts.RuleStore the
// reconstructor needs — it never mutates rules or history.
type AlertHistoryReader interface {
	ListHistory(tenantID string) ([]*alerts.HistoryRow, error)
}

// Reconstructor builds DiagnosticSnapshots from the event store and the
// alert engine's history.
type Reconstructor struct {
	reader store.EventReader
	alerts AlertHistoryReader
}

func New(reader store.EventReader, alertHistory AlertHistoryReader) *Reconstructor {
	return &Reconstructor{reader: reader, alerts: alertHistory}
}

// Reconstruct assembles the snapshot for one session. The alert history
// included is every row scoped to the session's agent (or tenant-wide,
// AgentID == "") — a session has no intrinsic link to which alert rules
// ran over it, so the agent is the join key.
func (r *Reconstructor) Reconstruct(ctx context.Context, tenantID, sessionID string) (*DiagnosticSnapshot, error) {
	sess, err := r.reader.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay: get session: %w", err)
	}

	timeline, err := r.reader.GetSessionTimeline(ctx, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay: get session timeline: %w", err)
	}

	agent, err := r.reader.GetAgent(ctx, tenantID, sess.AgentID)
	if err != nil {
		return nil, fmt.Errorf("replay: get agent: %w", err)
	}

	history, err := r.relevantAlertHistory(tenantID, sess.AgentID)
	if err != nil {
		return nil, fmt.Errorf("replay: list alert history: %w", err)
	}

	return &DiagnosticSnapshot{
		TenantID:     tenantID,
		SessionID:    sessionID,
		Session:      sess,
		Timeline:     timeline.Events,
		ChainValid:   timeline.ChainValid,
		Agent:        agent,
		AlertHistory: history,
	}, nil
}

func (r *Reconstructor) relevantAlertHistory(tenantID, agentID string) ([]*alerts.HistoryRow, error) {
	if r.alerts == nil {
		return nil, nil
	}
	all, err := r.alerts.ListHistory(tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*alerts.HistoryRow, 0, len(all))
	for _, row := range all {
		if row.AgentID == "" || row.AgentID == agentID {
			out = append(out, row)
		}
	}
	return out, nil
}
