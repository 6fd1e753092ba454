package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/benchmark"
)

// benchmarkComputeRequest describes an ad-hoc comparison (spec.md §4.11).
type benchmarkComputeRequest struct {
	Name     string                    `json:"name" binding:"required"`
	Variants []benchmarkVariantRequest `json:"variants" binding:"required,min=2,dive"`
	Metrics  []string                  `json:"metrics" binding:"required,min=1"`
}

type benchmarkVariantRequest struct {
	Name string `json:"name" binding:"required"`
	Tag  string `json:"tag" binding:"required"`
}

// computeBenchmarkHandler handles GET /api/benchmarks/compute.
func (s *Server) computeBenchmarkHandler(c *gin.Context) {
	if s.benchmarks == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "benchmarks not configured"})
		return
	}

	var req benchmarkComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	variants := make([]benchmark.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		variants = append(variants, benchmark.Variant{Name: v.Name, Tag: v.Tag})
	}
	metrics := make([]benchmark.MetricName, 0, len(req.Metrics))
	for _, m := range req.Metrics {
		metrics = append(metrics, benchmark.MetricName(m))
	}

	result, err := s.benchmarks.Compute(c.Request.Context(), &benchmark.Benchmark{
		TenantID: tenantID(c),
		Name:     req.Name,
		Variants: variants,
		Metrics:  metrics,
		Status:   benchmark.StatusRunning,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
