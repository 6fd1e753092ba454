package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getDiagnosticsHandler handles GET /api/sessions/:id/diagnostics, the
// replay/diagnostics bundle supplemented into SPEC_FULL.md (C15).
func (s *Server) getDiagnosticsHandler(c *gin.Context) {
	if s.replay == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "diagnostics not configured"})
		return
	}
	snap, err := s.replay.Reconstruct(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
