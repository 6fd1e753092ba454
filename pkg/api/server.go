// Package api provides the HTTP surface for AgentLens: event ingest
// (native + webhook), query endpoints, alert/guardrail rule CRUD,
// real-time streaming, benchmarks, compliance export, and diagnostics
// (spec.md §6). Routing is built on gin, replacing the teacher's echo
// router; Server's Set*-method wiring, ValidateWiring, and
// Start/StartWithListener/Shutdown lifecycle are kept from
// pkg/api/server.go's original shape.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentlens/backend/pkg/alerts"
	"github.com/agentlens/backend/pkg/apikey"
	"github.com/agentlens/backend/pkg/benchmark"
	"github.com/agentlens/backend/pkg/bus"
	"github.com/agentlens/backend/pkg/embedding"
	"github.com/agentlens/backend/pkg/export"
	"github.com/agentlens/backend/pkg/guardrails"
	"github.com/agentlens/backend/pkg/ingest"
	"github.com/agentlens/backend/pkg/notify"
	"github.com/agentlens/backend/pkg/orgconfig"
	"github.com/agentlens/backend/pkg/ratelimit"
	"github.com/agentlens/backend/pkg/recall"
	"github.com/agentlens/backend/pkg/replay"
	"github.com/agentlens/backend/pkg/store"
	"github.com/agentlens/backend/pkg/telemetry"
	"github.com/agentlens/backend/pkg/version"
	"github.com/agentlens/backend/pkg/webhookingest"
)

// AlertRuleStore is the subset of alerts.RuleStore plus admin CRUD the
// rule handlers need. alerts.MemoryRuleStore satisfies it.
type AlertRuleStore interface {
	alerts.RuleStore
	Put(r *alerts.Rule) *alerts.Rule
	Get(ruleID string) *alerts.Rule
	Delete(ruleID string)
	List(tenantID string) ([]*alerts.Rule, error)
}

// GuardrailRuleStore is the guardrails analogue of AlertRuleStore.
type GuardrailRuleStore interface {
	guardrails.RuleStore
	Put(r *guardrails.Rule) *guardrails.Rule
	Get(ruleID string) *guardrails.Rule
	Delete(ruleID string)
	List(tenantID string) ([]*guardrails.Rule, error)
	RecentTriggers(ruleID string) []*guardrails.RecentTrigger
}

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	store       store.Store
	bus         *bus.Bus
	ingest      *ingest.Pipeline
	webhooks    *webhookingest.Gateway
	alertRules  AlertRuleStore
	guardRules  GuardrailRuleStore
	notifier    *notify.Router
	benchmarks  *benchmark.Engine
	exporter    *export.Exporter
	replay      *replay.Reconstructor
	recall      *recall.Searcher
	embedder    embedding.Embedder
	limiter     *ratelimit.Limiter
	quota       *ratelimit.QuotaChecker
	authn       *apikey.Authenticator
	plans       *orgconfig.PlanRegistry
	ruleConfigs *orgconfig.RuleDefaultsRegistry
	metrics     *telemetry.Metrics
}

// New builds a Server wired against every required dependency. Optional
// components (embedder, benchmarks) may be nil and are checked for at
// request time with a 503.
func New(
	st store.Store,
	b *bus.Bus,
	pipeline *ingest.Pipeline,
	webhooks *webhookingest.Gateway,
	alertRules AlertRuleStore,
	guardRules GuardrailRuleStore,
	notifier *notify.Router,
	authn *apikey.Authenticator,
	limiter *ratelimit.Limiter,
	quota *ratelimit.QuotaChecker,
	plans *orgconfig.PlanRegistry,
	ruleConfigs *orgconfig.RuleDefaultsRegistry,
	metrics *telemetry.Metrics,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:      gin.New(),
		store:       st,
		bus:         b,
		ingest:      pipeline,
		webhooks:    webhooks,
		alertRules:  alertRules,
		guardRules:  guardRules,
		notifier:    notifier,
		authn:       authn,
		limiter:     limiter,
		quota:       quota,
		plans:       plans,
		ruleConfigs: ruleConfigs,
		metrics:     metrics,
	}
	s.setupRoutes()
	return s
}

// SetBenchmarkEngine wires the optional benchmark comparison endpoint.
func (s *Server) SetBenchmarkEngine(e *benchmark.Engine) { s.benchmarks = e }

// SetExporter wires the optional compliance-export endpoint.
func (s *Server) SetExporter(e *export.Exporter) { s.exporter = e }

// SetReplayReconstructor wires the optional diagnostics endpoint.
func (s *Server) SetReplayReconstructor(r *replay.Reconstructor) { s.replay = r }

// SetRecall wires the optional recall-search endpoint and the embedder
// used to vectorize query text.
func (s *Server) SetRecall(searcher *recall.Searcher, embedder embedding.Embedder) {
	s.recall = searcher
	s.embedder = embedder
}

// ValidateWiring reports every required dependency left nil, so wiring
// gaps surface at startup instead of as 500s at request time.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.store == nil {
		errs = append(errs, fmt.Errorf("store not set"))
	}
	if s.ingest == nil {
		errs = append(errs, fmt.Errorf("ingest pipeline not set"))
	}
	if s.authn == nil {
		errs = append(errs, fmt.Errorf("authenticator not set"))
	}
	if s.limiter == nil {
		errs = append(errs, fmt.Errorf("rate limiter not set"))
	}
	if s.quota == nil {
		errs = append(errs, fmt.Errorf("quota checker not set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

// setupRoutes registers every HTTP route.
func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.securityHeaders())
	s.engine.Use(s.metricsMiddleware())
	s.engine.MaxMultipartMemory = 2 << 20

	s.engine.GET("/health", s.healthHandler)

	api := s.engine.Group("/api")
	api.Use(s.authMiddleware())
	api.Use(s.rateLimitMiddleware())

	api.POST("/events/ingest", s.ingestEventsHandler)
	api.POST("/webhooks/:source", s.webhookIngestHandler)

	api.GET("/events", s.queryEventsHandler)
	api.GET("/sessions", s.querySessionsHandler)
	api.GET("/sessions/:id", s.getSessionHandler)
	api.GET("/sessions/:id/timeline", s.getTimelineHandler)
	api.GET("/sessions/:id/diagnostics", s.getDiagnosticsHandler)
	api.GET("/agents", s.listAgentsHandler)
	api.GET("/agents/:id", s.getAgentHandler)

	api.GET("/recall", s.recallHandler)

	api.GET("/alerts/rules", s.listAlertRulesHandler)
	api.POST("/alerts/rules", s.createAlertRuleHandler)
	api.GET("/alerts/rules/:id", s.getAlertRuleHandler)
	api.PUT("/alerts/rules/:id", s.updateAlertRuleHandler)
	api.DELETE("/alerts/rules/:id", s.deleteAlertRuleHandler)
	api.GET("/alerts/history", s.listAlertHistoryHandler)

	api.GET("/guardrails/rules", s.listGuardrailRulesHandler)
	api.POST("/guardrails/rules", s.createGuardrailRuleHandler)
	api.GET("/guardrails/rules/:id", s.getGuardrailRuleHandler)
	api.PUT("/guardrails/rules/:id", s.updateGuardrailRuleHandler)
	api.DELETE("/guardrails/rules/:id", s.deleteGuardrailRuleHandler)
	api.GET("/guardrails/rules/:id/status", s.guardrailRuleStatusHandler)

	api.POST("/benchmarks/compute", s.computeBenchmarkHandler)
	api.GET("/export", s.exportHandler)
	api.GET("/stream", s.streamHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
	})
}
