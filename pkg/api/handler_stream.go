package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// streamHandler handles GET /api/stream (spec.md §4.6): a Server-Sent
// Events feed of newly ingested events for the caller's tenant,
// optionally narrowed to one session via ?sessionId=. Grounded on
// pkg/bus's tenant-scoped pub/sub, replacing the teacher's WebSocket
// ConnectionManager transport with SSE per spec.md §6.
func (s *Server) streamHandler(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	sub := s.bus.Subscribe(c.Request.Context(), tenantID(c), c.Query("sessionId"), 0)
	defer sub.Cancel()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming unsupported"})
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: event\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
