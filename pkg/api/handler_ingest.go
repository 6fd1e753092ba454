package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/ingest"
	"github.com/agentlens/backend/pkg/webhookingest"
)

// ingestEventsHandler handles POST /api/events/ingest (spec.md §4.5/§6).
func (s *Server) ingestEventsHandler(c *gin.Context) {
	var body IngestRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	reqs := make([]ingest.IngestRequest, 0, len(body.Events))
	for _, e := range body.Events {
		reqs = append(reqs, ingest.IngestRequest{
			SessionID: e.SessionID,
			AgentID:   e.AgentID,
			EventType: eventmodel.EventType(e.EventType),
			Timestamp: e.Timestamp,
			Severity:  eventmodel.Severity(e.Severity),
			Payload:   e.Payload,
			Metadata:  e.Metadata,
		})
	}

	events, err := s.ingest.Ingest(c.Request.Context(), tenantID(c), reqs)
	if err != nil {
		writeError(c, err)
		return
	}

	if s.metrics != nil {
		for _, ev := range events {
			s.metrics.EventsIngestedTotal.WithLabelValues(ev.TenantID, string(ev.EventType)).Inc()
		}
		s.metrics.IngestBatchSize.Observe(float64(len(events)))
	}
	s.quota.RecordIngest(c.Request.Context(), tenantID(c), len(events))

	c.JSON(http.StatusAccepted, IngestResponse{Accepted: len(events), Events: events})
}

// webhookIngestHandler handles POST /api/webhooks/:source (spec.md §6),
// verifying the X-Webhook-Signature header before translating the
// payload into a canonical event via pkg/webhookingest.
func (s *Server) webhookIngestHandler(c *gin.Context) {
	if s.webhooks == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "webhook ingest not configured"})
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "could not read request body"})
		return
	}

	var body WebhookRequestBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}

	ev, err := s.webhooks.Ingest(c.Request.Context(), tenantID(c), rawBody, c.GetHeader("X-Webhook-Signature"), webhookingest.Request{
		Source:  webhookingest.Source(c.Param("source")),
		Event:   body.Event,
		Data:    body.Data,
		Context: body.Context,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.EventsIngestedTotal.WithLabelValues(ev.TenantID, string(ev.EventType)).Inc()
	}
	s.quota.RecordIngest(c.Request.Context(), tenantID(c), 1)

	c.JSON(http.StatusAccepted, ev)
}
