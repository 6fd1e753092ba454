// Command agentlensd is the AgentLens backend server: event ingest,
// query API, alert/guardrail evaluation, notification dispatch, and
// compliance export behind a single HTTP listener (spec.md §OVERVIEW).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	weaviateclient "github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/agentlens/backend/pkg/alerts"
	"github.com/agentlens/backend/pkg/api"
	"github.com/agentlens/backend/pkg/apikey"
	"github.com/agentlens/backend/pkg/benchmark"
	"github.com/agentlens/backend/pkg/bus"
	"github.com/agentlens/backend/pkg/embedding"
	"github.com/agentlens/backend/pkg/export"
	"github.com/agentlens/backend/pkg/guardrails"
	"github.com/agentlens/backend/pkg/ingest"
	"github.com/agentlens/backend/pkg/masking"
	"github.com/agentlens/backend/pkg/notify"
	"github.com/agentlens/backend/pkg/orgconfig"
	"github.com/agentlens/backend/pkg/ratelimit"
	"github.com/agentlens/backend/pkg/recall"
	"github.com/agentlens/backend/pkg/replay"
	"github.com/agentlens/backend/pkg/store"
	"github.com/agentlens/backend/pkg/telemetry"
	"github.com/agentlens/backend/pkg/webhookingest"

	"github.com/prometheus/client_golang/prometheus"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	logger := telemetry.SetupLogging(telemetry.LoggingConfig{
		JSON:  getEnv("LOG_FORMAT", "json") == "json",
		Level: parseLogLevel(getEnv("LOG_LEVEL", "info")),
	})

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	logger.Info("starting agentlensd", "http_port", httpPort, "config_dir", *configDir)

	metrics := telemetry.New(prometheus.DefaultRegisterer)

	eventStore, closeStore, err := newEventStore()
	if err != nil {
		log.Fatalf("failed to initialize event store: %v", err)
	}
	defer closeStore()

	masker := masking.NewService(getEnv("MASKING_ENABLED", "true") == "true")
	eventBus := bus.New()

	embedder, embedStore, embedWorker := newEmbeddingBackend()

	pipeline := ingest.New(eventStore, masker, ingest.SideEffects{
		Bus: eventBus,
		EnqueueEmbed: func(tenantID, sourceType, sourceID, text string) {
			embedWorker.Submit(tenantID, embedding.SourceType(sourceType), sourceID, text)
		},
	})

	authnStore := apikey.NewMemoryStore()
	authn := apikey.NewAuthenticator(authnStore)
	seedDevAPIKey(authnStore, logger)

	limiter := ratelimit.NewLimiter(ratelimit.LimiterConfig{}, nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	limiter.Start(ctx)

	planRegistry := orgconfig.NewPlanRegistry(nil)
	ruleConfigs := orgconfig.NewRuleDefaultsRegistry(orgconfig.DefaultRuleDefaults(), nil)
	usageAdapter := orgconfig.NewStoreUsageAdapter(eventStore)

	var rdb *redis.Client
	if url := os.Getenv("REDIS_URL"); url != "" {
		opt, err := redis.ParseURL(url)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}
	quota := ratelimit.NewQuotaChecker(planRegistry, usageAdapter, rdb, ratelimit.QuotaConfig{}, nil, logger)

	channelStore := notify.NewMemoryChannelStore()
	logStore := notify.NewMemoryLogStore()
	notifier := notify.New(channelStore, logStore, notify.Config{
		AllowInternal: getEnv("NOTIFY_ALLOW_INTERNAL", "false") == "true",
	})

	alertRules := alerts.NewMemoryRuleStore()
	alertEngine := alerts.New(alertRules, eventStore, notifier, alerts.Config{}, nil)
	alertEngine.Start(ctx)
	defer alertEngine.Stop()

	guardRules := guardrails.NewMemoryRuleStore()
	guardEngine := guardrails.New(guardRules, eventStore, eventStore, notifier, pipeline, guardrails.Config{}, nil)
	guardEngine.Start(ctx)
	defer guardEngine.Stop()

	webhookSecrets := webhookingest.NewMemorySecretResolver(loadWebhookSecrets())
	webhookGateway := webhookingest.New(pipeline, webhookSecrets, nil)

	searcher := recall.New(embedStore)
	benchmarkEngine := benchmark.New(eventStore)
	exporter := export.New(eventStore)
	reconstructor := replay.New(eventStore, alertRules)

	go embedWorker.Run(ctx)

	server := api.New(
		eventStore,
		eventBus,
		pipeline,
		webhookGateway,
		alertRules,
		guardRules,
		notifier,
		authn,
		limiter,
		quota,
		planRegistry,
		ruleConfigs,
		metrics,
	)
	server.SetBenchmarkEngine(benchmarkEngine)
	server.SetExporter(exporter)
	server.SetReplayReconstructor(reconstructor)
	server.SetRecall(searcher, embedder)

	if err := server.ValidateWiring(); err != nil {
		log.Fatalf("server wiring incomplete: %v", err)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("http server listening", "addr", ":"+httpPort)
		if err := server.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-done
	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

// newEventStore builds a PostgresStore when DB_HOST (or any DB_* var) is
// configured for a real deployment, otherwise an in-process MemoryStore
// for local development — selected the same way the ambient stack
// elsewhere in this package falls back to an in-memory implementation
// when no external dependency is configured.
func newEventStore() (store.Store, func(), error) {
	if getEnv("STORE_BACKEND", "memory") != "postgres" {
		return store.NewMemoryStore(), func() {}, nil
	}
	cfg, err := store.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	pg, err := store.NewPostgresStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { pg.Close() }, nil
}

// newEmbeddingBackend wires the embedding Embedder, Store, and Worker.
// With no OPENAI_API_KEY configured, recall search runs against an
// empty in-memory embedding store rather than failing startup —
// embeddings are a best-effort side effect of ingest (spec.md §4.7).
// Setting WEAVIATE_URL switches the Store from the in-process
// MemoryStore to an external Weaviate index — the scale-out path
// spec.md §4.7 names for tenants too large for an in-memory or
// brute-force Postgres cosine scan.
func newEmbeddingBackend() (embedding.Embedder, embedding.Store, *embedding.Worker) {
	var embedStore embedding.Store = embedding.NewMemoryStore()
	if url := os.Getenv("WEAVIATE_URL"); url != "" {
		ws, err := newWeaviateStore(url)
		if err != nil {
			log.Fatalf("failed to initialize weaviate store: %v", err)
		}
		embedStore = ws
	}

	var embedder embedding.Embedder
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		e, err := embedding.NewOpenAIEmbedder(key, openai.SmallEmbedding3)
		if err != nil {
			log.Fatalf("failed to initialize embedder: %v", err)
		}
		embedder = e
	}
	return embedder, embedStore, embedding.New(embedStore, embedder, 0)
}

// newWeaviateStore parses WEAVIATE_URL (e.g. "http://localhost:8081"),
// connects, and ensures the embedding class schema exists.
func newWeaviateStore(rawURL string) (*embedding.WeaviateStore, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid WEAVIATE_URL: %w", err)
	}
	client, err := weaviateclient.NewClient(weaviateclient.Config{
		Host:   u.Host,
		Scheme: u.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	store := embedding.NewWeaviateStore(client)
	if err := store.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure weaviate schema: %w", err)
	}
	return store, nil
}

// seedDevAPIKey mints a single API key at startup when no key store is
// configured externally, so a fresh deployment has something to
// authenticate with immediately. Logged once at Info level — the raw
// key is never persisted, per pkg/apikey's contract.
func seedDevAPIKey(authnStore apikey.Store, logger *slog.Logger) {
	if getEnv("SEED_DEV_API_KEY", "true") != "true" {
		return
	}
	raw, key, err := apikey.Generate(apikey.CreateRequest{
		TenantID:  getEnv("SEED_TENANT_ID", "dev"),
		Scopes:    []string{"*"},
		RateLimit: ratelimit.DefaultCapacity,
	})
	if err != nil {
		logger.Error("failed to seed dev api key", "error", err)
		return
	}
	if _, err := authnStore.Put(key); err != nil {
		logger.Error("failed to persist dev api key", "error", err)
		return
	}
	logger.Info("seeded development api key", "tenant_id", key.TenantID, "raw_key", raw)
}

// loadWebhookSecrets reads per-source webhook HMAC secrets from the
// environment (WEBHOOK_SECRET_<SOURCE>).
func loadWebhookSecrets() map[webhookingest.Source]string {
	secrets := map[webhookingest.Source]string{}
	for _, src := range []webhookingest.Source{
		webhookingest.SourceFormbridge,
		webhookingest.SourceGeneric,
	} {
		if v := os.Getenv("WEBHOOK_SECRET_" + string(src)); v != "" {
			secrets[src] = v
		}
	}
	return secrets
}

func parseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
