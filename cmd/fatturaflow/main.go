// Command fatturaflow runs the invoice workflow orchestration engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	ffhttp "github.com/fatturaflow/fatturaflow/internal/adapter/http"
	"github.com/fatturaflow/fatturaflow/internal/adapter/litellm"
	"github.com/fatturaflow/fatturaflow/internal/adapter/llmagent"
	ffnats "github.com/fatturaflow/fatturaflow/internal/adapter/nats"
	"github.com/fatturaflow/fatturaflow/internal/adapter/natskv"
	"github.com/fatturaflow/fatturaflow/internal/adapter/otel"
	"github.com/fatturaflow/fatturaflow/internal/adapter/postgres"
	"github.com/fatturaflow/fatturaflow/internal/adapter/ristretto"
	"github.com/fatturaflow/fatturaflow/internal/adapter/slack"
	"github.com/fatturaflow/fatturaflow/internal/adapter/tiered"
	"github.com/fatturaflow/fatturaflow/internal/adapter/ws"
	"github.com/fatturaflow/fatturaflow/internal/config"
	"github.com/fatturaflow/fatturaflow/internal/domain/agent"
	"github.com/fatturaflow/fatturaflow/internal/logger"
	"github.com/fatturaflow/fatturaflow/internal/port/agentcap"
	"github.com/fatturaflow/fatturaflow/internal/port/cache"
	"github.com/fatturaflow/fatturaflow/internal/resilience"
	"github.com/fatturaflow/fatturaflow/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"check_level", cfg.Workflow.DefaultCheckLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	otelShutdown, err := otel.Init(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := ffnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()
	slog.Info("nats connected")

	// --- Agent result cache: ristretto L1, JetStream KV L2 ---
	resultCache, err := buildResultCache(ctx, cfg, queue)
	if err != nil {
		return fmt.Errorf("result cache: %w", err)
	}

	// --- LLM agents ---
	llm := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	registry := agentcap.NewRegistry()
	for _, t := range []agent.Type{
		agent.TypeExtraction,
		agent.TypeDescription,
		agent.TypeTaxSuggestion,
		agent.TypeCompliance,
	} {
		inv, err := llmagent.New(t, llm, cfg.LiteLLM.Model)
		if err != nil {
			return fmt.Errorf("agent %s: %w", t, err)
		}
		if err := registry.Register(inv); err != nil {
			return fmt.Errorf("register %s: %w", t, err)
		}
	}

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	complianceSvc := service.NewComplianceService(store, registry, queue)
	orchestrator := service.NewOrchestrator(store, registry, complianceSvc, resultCache, queue, hub, cfg.Workflow)
	orchestrator.SetMetrics(metrics)
	if cfg.Notify.SlackWebhookURL != "" {
		orchestrator.AddNotifier(slack.NewNotifier(cfg.Notify.SlackWebhookURL))
	}

	// --- HTTP ---
	handlers := ffhttp.NewHandlers(orchestrator,
		pgChecker{pool: pool},
		natsChecker{queue: queue},
		llmChecker{client: llm},
	)

	r := chi.NewRouter()
	r.Use(ffhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(ffhttp.SecurityHeaders)
	r.Use(ffhttp.CorrelationID)
	r.Use(ffhttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/ws", hub.HandleWS)
	ffhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	hub.CloseAll()
	return nil
}

// buildResultCache assembles the tiered agent-result cache. A disabled cache
// config yields a nil cache, which the orchestrator treats as a miss on
// every lookup.
func buildResultCache(ctx context.Context, cfg *config.Config, queue *ffnats.Queue) (*service.ResultCache, error) {
	portCfg := cache.Config{
		Enabled:             cfg.Cache.Enabled,
		Strategy:            cache.Strategy(cfg.Cache.Strategy),
		MaxEntries:          cfg.Cache.MaxEntries,
		DefaultTTL:          cfg.Cache.DefaultTTL,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
	}
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}

	kv, err := natskv.EnsureBucket(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("kv bucket: %w", err)
	}

	backend := tiered.New(l1, natskv.New(kv), cfg.Cache.DefaultTTL)
	return service.NewResultCache(backend, portCfg)
}
