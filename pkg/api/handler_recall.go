package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/embedding"
	"github.com/agentlens/backend/pkg/recall"
)

// recallHandler handles GET /api/recall (spec.md §4.7/§6): embeds the
// query text, then scores stored embeddings by cosine similarity.
func (s *Server) recallHandler(c *gin.Context) {
	if s.recall == nil || s.embedder == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "recall not configured"})
		return
	}
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "q is required"})
		return
	}

	vec, _, _, err := s.embedder.Embed(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}

	query := recall.Query{
		TenantID:   tenantID(c),
		SourceType: embedding.SourceType(c.Query("sourceType")),
		Limit:      queryInt(c, "limit", 0),
	}
	if from, ok := queryTime(c, "from"); ok {
		query.From = &from
	}
	if to, ok := queryTime(c, "to"); ok {
		query.To = &to
	}

	matches, err := s.recall.Search(c.Request.Context(), query, vec)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]RecallMatchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, RecallMatchResponse{
			SourceType: string(m.Embedding.SourceType),
			SourceID:   m.Embedding.SourceID,
			Content:    m.Embedding.TextContent,
			Score:      m.Score,
			CreatedAt:  m.Embedding.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
