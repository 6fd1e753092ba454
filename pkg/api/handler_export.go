package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/export"
)

// exportHandler handles GET /api/export (spec.md §4.13): streams a
// compliance export of the tenant's events in the requested format
// directly to the response writer, never buffering the full result set.
func (s *Server) exportHandler(c *gin.Context) {
	if s.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "export not configured"})
		return
	}

	format := export.Format(c.DefaultQuery("format", string(export.FormatJSON)))
	req := export.Request{TenantID: tenantID(c), Format: format}
	if from, ok := queryTime(c, "from"); ok {
		req.From = from
	}
	if to, ok := queryTime(c, "to"); ok {
		req.To = to
	}

	switch format {
	case export.FormatCSV:
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="events.csv"`)
	default:
		c.Header("Content-Type", "application/json")
	}

	c.Status(http.StatusOK)
	if err := s.exporter.Export(c.Request.Context(), req, c.Writer); err != nil {
		// Headers are already flushed by this point for a large export —
		// log and abort rather than attempt a second JSON error response.
		c.Error(err)
		c.Abort()
	}
}
