package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/store"
)

// queryEventsHandler handles GET /api/events (spec.md §4.2).
func (s *Server) queryEventsHandler(c *gin.Context) {
	filter := store.EventFilter{
		SessionID:   c.Query("sessionId"),
		AgentID:     c.Query("agentId"),
		PayloadLike: c.Query("q"),
		Limit:       queryInt(c, "limit", 100),
		Offset:      queryInt(c, "offset", 0),
		OrderDesc:   c.Query("order") != "asc",
	}
	if types := c.Query("eventTypes"); types != "" {
		for _, t := range strings.Split(types, ",") {
			filter.EventTypes = append(filter.EventTypes, eventmodel.EventType(t))
		}
	}
	if sevs := c.Query("severities"); sevs != "" {
		for _, sv := range strings.Split(sevs, ",") {
			filter.Severities = append(filter.Severities, eventmodel.Severity(sv))
		}
	}
	if from, ok := queryTime(c, "from"); ok {
		filter.From = &from
	}
	if to, ok := queryTime(c, "to"); ok {
		filter.To = &to
	}

	page, err := s.store.QueryEvents(c.Request.Context(), tenantID(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, EventPageResponse{
		Events: page.Events, Total: page.Total, HasMore: page.HasMore, ChainValid: page.ChainValid,
	})
}

// querySessionsHandler handles GET /api/sessions.
func (s *Server) querySessionsHandler(c *gin.Context) {
	filter := store.SessionFilter{
		AgentID: c.Query("agentId"),
		Status:  store.SessionStatus(c.Query("status")),
		Limit:   queryInt(c, "limit", 50),
		Offset:  queryInt(c, "offset", 0),
	}
	if tags := c.Query("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	if from, ok := queryTime(c, "from"); ok {
		filter.From = &from
	}
	if to, ok := queryTime(c, "to"); ok {
		filter.To = &to
	}

	page, err := s.store.QuerySessions(c.Request.Context(), tenantID(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionPageResponse{Sessions: page.Sessions, Total: page.Total, HasMore: page.HasMore})
}

// getSessionHandler handles GET /api/sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	sess, err := s.store.GetSession(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// getTimelineHandler handles GET /api/sessions/:id/timeline.
func (s *Server) getTimelineHandler(c *gin.Context) {
	tl, err := s.store.GetSessionTimeline(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TimelineResponse{Events: tl.Events, ChainValid: tl.ChainValid})
}

// listAgentsHandler handles GET /api/agents.
func (s *Server) listAgentsHandler(c *gin.Context) {
	agents, err := s.store.ListAgents(c.Request.Context(), tenantID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

// getAgentHandler handles GET /api/agents/:id.
func (s *Server) getAgentHandler(c *gin.Context) {
	agent, err := s.store.GetAgent(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
