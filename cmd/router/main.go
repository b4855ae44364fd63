// The router service: classifies queries and decides the inference tier.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datamind/dispatch/internal/api"
	"github.com/datamind/dispatch/internal/classifier"
	"github.com/datamind/dispatch/internal/config"
	"github.com/datamind/dispatch/internal/core"
	"github.com/datamind/dispatch/internal/infra"
	"github.com/datamind/dispatch/internal/middleware"
	"github.com/datamind/dispatch/internal/observability"
	"github.com/datamind/dispatch/internal/router"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("dispatch-router")
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}

	// Decision cache. Routing survives without it, so a down Redis only
	// logs a warning.
	var cache infra.KVStore
	redisAdapter, err := infra.NewGoRedisAdapter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("decision cache unavailable, routing uncached", "error", err)
	} else {
		cache = redisAdapter
		defer redisAdapter.Close()
	}

	ollama := classifier.NewOllamaClient(cfg.OllamaURL, cfg.OllamaTimeout)
	thresholds := classifier.Thresholds{
		SimpleMax:  cfg.ComplexitySimpleMax,
		MediumMax:  cfg.ComplexityMediumMax,
		ComplexMax: cfg.ComplexityComplexMax,
	}

	rt := router.New(
		classifier.NewSLMIntentClassifier(ollama, cfg.IntentModel),
		classifier.NewSLMComplexityScorer(ollama, cfg.ComplexityModel, thresholds),
		classifier.NewRuleBasedSensitivityDetector(),
		cache,
		router.NewMetrics(),
		router.Options{
			Models:              tierModels(cfg),
			Budgets:             latencyBudgets(cfg),
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			CacheTTL:            cfg.CacheTTL,
		},
	)

	server := api.NewRouterServer(rt, ollama.Reachable, promhttp.Handler())
	server.UseRateLimiter(middleware.NewRateLimiter(middleware.RateLimitConfig{
		MaxPerMinute: cfg.RateLimitPerMinute,
		Burst:        cfg.RateLimitBurst,
	}))
	server.SetReady(true)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(cfg.IsDevelopment()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("router service listening", "port", cfg.Port, "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("trace flush failed", "error", err)
	}
	slog.Info("router service stopped")
}

// tierModels builds the per-tier model map. Cloud picks by intent: SQL and
// CODE get the SQL-tuned model, MODEL and EDA the analysis model, the rest
// fall to the default.
func tierModels(cfg *config.Config) router.TierModels {
	return router.TierModels{
		core.TierEdge: {"default": cfg.EdgeModel},
		core.TierSLM:  {"default": cfg.SLMModel},
		core.TierCloud: {
			"default":                cfg.CloudDefaultModel,
			string(core.IntentSQL):   cfg.CloudSQLModel,
			string(core.IntentCode):  cfg.CloudSQLModel,
			string(core.IntentModel): cfg.CloudAnalysisModel,
			string(core.IntentEDA):   cfg.CloudAnalysisModel,
		},
		core.TierRLM: {"default": cfg.RLMModel},
	}
}

func latencyBudgets(cfg *config.Config) router.LatencyBudgets {
	return router.LatencyBudgets{
		core.TierEdge:  cfg.LatencyEdgeMs,
		core.TierSLM:   cfg.LatencySLMMs,
		core.TierCloud: cfg.LatencyCloudMs,
		core.TierRLM:   cfg.LatencyRLMMs,
	}
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.ServiceName))
}
