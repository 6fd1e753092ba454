package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/apikey"
	"github.com/agentlens/backend/pkg/ingest"
	"github.com/agentlens/backend/pkg/orgconfig"
	"github.com/agentlens/backend/pkg/store"
	"github.com/agentlens/backend/pkg/webhookingest"
)

// writeError maps a service-layer error to an HTTP error response,
// generalizing the teacher's mapServiceError from a services-package
// error taxonomy to AgentLens's own.
func writeError(c *gin.Context, err error) {
	var validErr *ingest.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Details: validErr.Details})
		return
	}

	switch {
	case errors.Is(err, orgconfig.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	case errors.Is(err, apikey.ErrInvalidKey):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or revoked key"})
		return
	case errors.Is(err, apikey.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	case errors.Is(err, webhookingest.ErrUnknownSource):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown webhook source"})
		return
	case errors.Is(err, webhookingest.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid webhook signature"})
		return
	case errors.Is(err, webhookingest.ErrUnknownEvent):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown webhook event"})
		return
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "resource not found"})
		return
	}

	slog.Error("unexpected API error", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
