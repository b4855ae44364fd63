// The auth service: token authority, revocation, and ABAC evaluation.
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

	"github.com/datamind/dispatch/internal/api"
	"github.com/datamind/dispatch/internal/auth"
	"github.com/datamind/dispatch/internal/config"
	"github.com/datamind/dispatch/internal/infra"
	"github.com/datamind/dispatch/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("dispatch-auth")
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	if cfg.SecretSource == "vault" {
		// The Vault agent sidecar injects JWT_SECRET_KEY into the
		// environment before the process starts; nothing to fetch here.
		slog.Info("signing secret provisioned via vault agent", "vault_url", cfg.VaultURL)
	}
	if !cfg.IsDevelopment() && cfg.SigningSecret == "change-me-in-production" {
		slog.Error("refusing to start with the default signing secret outside development")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}

	// Revocation needs the shared store; unlike the router's cache this is
	// load-bearing, so failure to connect is fatal.
	store, err := infra.NewGoRedisAdapter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Error("revocation store unavailable", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	authority := auth.NewTokenAuthority(auth.AuthorityConfig{
		SigningSecret:   cfg.SigningSecret,
		KeyID:           cfg.SigningKeyID,
		DefaultLifetime: cfg.TokenLifetime,
		MaxLifetime:     cfg.TokenMaxLifetime,
	}, store)

	server := api.NewAuthServer(
		authority,
		auth.NewPolicyEngine(),
		cfg.IsDevelopment(),
		int(cfg.TokenLifetime.Seconds()),
	)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("auth service listening", "port", cfg.Port, "env", cfg.Env)
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
	slog.Info("auth service stopped")
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.ServiceName))
}
