package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/apikey"
	"github.com/agentlens/backend/pkg/ratelimit"
)

// tenantContextKey is the gin context key the auth middleware stores the
// authenticated API key's tenant under.
const tenantContextKey = "agentlens.tenantID"

const apiKeyContextKey = "agentlens.apiKey"

// securityHeaders sets standard response headers, generalized from the
// teacher's echo middleware of the same name.
func (s *Server) securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// authMiddleware authenticates every /api/* request against an API key
// and stores its tenant ID in the gin context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := s.authn.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing API key"})
			return
		}
		c.Set(tenantContextKey, key.TenantID)
		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

// rateLimitMiddleware enforces the per-key token bucket and the org
// monthly quota (spec.md §4.12) ahead of every authenticated request.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(apiKeyContextKey)
		key, _ := v.(*apikey.Key)
		if !ok || key == nil {
			c.Next()
			return
		}
		capacity := key.RateLimit
		if !s.limiter.Allow(key.ID, capacity) {
			if s.metrics != nil {
				s.metrics.RateLimitRejectionsTotal.WithLabelValues(key.TenantID).Inc()
			}
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}

		result, err := s.quota.Check(c.Request.Context(), key.TenantID)
		if err == nil && result.Status == ratelimit.QuotaBlocked {
			if s.metrics != nil {
				s.metrics.QuotaBlocksTotal.WithLabelValues(key.TenantID, string(result.Status)).Inc()
			}
			c.AbortWithStatusJSON(http.StatusPaymentRequired, ErrorResponse{Error: "monthly event quota exceeded"})
			return
		}
		if err == nil && result.Status == ratelimit.QuotaWarning {
			c.Header("X-Quota-Warning", strconv.FormatFloat(result.UsagePercent, 'f', 1, 64))
		}
		c.Next()
	}
}

// metricsMiddleware records HTTP request counts/latency.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		s.metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// tenantID reads the authenticated tenant ID set by authMiddleware.
func tenantID(c *gin.Context) string {
	v, _ := c.Get(tenantContextKey)
	s, _ := v.(string)
	return s
}
