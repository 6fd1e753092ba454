// Package telemetry wires up the service's structured logging and
// Prometheus metrics registry. Modeled on
// infrastructure/metrics/metrics.go's CounterVec/HistogramVec/Gauge
// layout from the r3e-network-service_layer example, generalized from
// HTTP/blockchain metrics to AgentLens's own domain (ingest, alerts,
// guardrails, notifications, embeddings).
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector the service registers.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ingest
	EventsIngestedTotal *prometheus.CounterVec
	IngestBatchSize     prometheus.Histogram

	// Alerts / guardrails
	AlertsTriggeredTotal     *prometheus.CounterVec
	GuardrailActionsTotal    *prometheus.CounterVec
	RuleEvaluationErrorTotal *prometheus.CounterVec

	// Notifications
	NotificationDeliveriesTotal *prometheus.CounterVec

	// Embedding worker
	EmbeddingQueueDepth     prometheus.Gauge
	EmbeddingJobsDropped    *prometheus.CounterVec
	EmbeddingComputeSeconds prometheus.Histogram

	// Rate limiting
	RateLimitRejectionsTotal *prometheus.CounterVec
	QuotaBlocksTotal         *prometheus.CounterVec
}

// New creates a Metrics instance and registers every collector against
// registerer. Pass prometheus.DefaultRegisterer in production, or a
// fresh prometheus.NewRegistry() in tests that need isolation.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentlens_http_requests_total",
			Help: "Total HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentlens_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),

		EventsIngestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentlens_events_ingested_total",
			Help: "Total events accepted by the ingest pipeline.",
		}, []string{"tenant", "event_type"}),
		IngestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentlens_ingest_batch_size",
			Help:    "Event count per ingest call.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		AlertsTriggeredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentlens_alerts_triggered_total",
			Help: "Total alert rule firings.",
		}, []string{"tenant", "rule_type"}),
		GuardrailActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentlens_guardrail_actions_total",
			Help: "Total guardrail actions taken (or would-take, for dry runs).",
		}, []string{"tenant", "action", "dry_run"}),
		RuleEvaluationErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentlens_rule_evaluation_errors_total",
			Help: "Total alert/guardrail rule evaluation failures.",
		}, []string{"tenant", "engine"}),

		NotificationDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentlens_notification_deliveries_total",
			Help: "Total notification delivery attempts by provider and outcome.",
		}, []string{"provider", "success"}),

		EmbeddingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentlens_embedding_queue_depth",
			Help: "Current number of pending embedding jobs.",
		}),
		EmbeddingJobsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentlens_embedding_jobs_dropped_total",
			Help: "Total embedding jobs dropped (queue full or embed failure).",
		}, []string{"reason"}),
		EmbeddingComputeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentlens_embedding_compute_seconds",
			Help:    "Time spent computing one embedding.",
			Buckets: prometheus.DefBuckets,
		}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentlens_rate_limit_rejections_total",
			Help: "Total requests rejected by the per-key token bucket.",
		}, []string{"tenant"}),
		QuotaBlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentlens_quota_blocks_total",
			Help: "Total ingest requests blocked by monthly org quota.",
		}, []string{"org", "status"}),
	}

	registerer.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.EventsIngestedTotal, m.IngestBatchSize,
		m.AlertsTriggeredTotal, m.GuardrailActionsTotal, m.RuleEvaluationErrorTotal,
		m.NotificationDeliveriesTotal,
		m.EmbeddingQueueDepth, m.EmbeddingJobsDropped, m.EmbeddingComputeSeconds,
		m.RateLimitRejectionsTotal, m.QuotaBlocksTotal,
	)
	return m
}
