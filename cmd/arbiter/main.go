// Package main is the entry point for the arbiter debate server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/arbiter-hq/arbiter/internal/billing"
	"github.com/arbiter-hq/arbiter/internal/config"
	"github.com/arbiter-hq/arbiter/internal/debate"
	"github.com/arbiter-hq/arbiter/internal/migrations"
	"github.com/arbiter-hq/arbiter/internal/observability"
	"github.com/arbiter-hq/arbiter/internal/pricing"
	"github.com/arbiter-hq/arbiter/internal/provider"
	"github.com/arbiter-hq/arbiter/internal/server"
	"github.com/arbiter-hq/arbiter/internal/tokencount"
	"github.com/arbiter-hq/arbiter/internal/usage"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsProvider, err := observability.NewProvider()
	if err != nil {
		logger.Fatal("failed to build metrics provider", zap.Error(err))
	}
	defer metricsProvider.Shutdown(context.Background())

	staticPricing, err := pricing.LoadStaticTable(cfg.Pricing.StaticTablePath)
	if err != nil {
		logger.Fatal("failed to load static pricing table", zap.Error(err))
	}
	openRouterSource := &pricing.OpenRouterSource{APIKey: cfg.Pricing.OpenRouterAPIKey, Client: http.DefaultClient}
	resolver := pricing.NewResolver(staticPricing, openRouterSource, pricing.LogWarner(logger.Sugar()))

	usageStore := usage.NewMemoryStore()
	recorder := usage.NewRecorder(usageStore, resolver)
	ledger := billing.NewMemoryLedger()

	store, err := buildDebateStore(cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to set up debate store", zap.Error(err))
	}
	counter := tokencount.NewCounter()
	providerFactory := provider.NewFactory(cfg.Providers, http.DefaultClient)

	prompts := debate.NewPromptLibrary("prompts")
	if err := prompts.Load(); err != nil {
		logger.Fatal("failed to load prompt library", zap.Error(err))
	}

	svc := debate.NewService(store, ledger, recorder, counter, providerFactory, prompts)
	svc.SetMetrics(metricsProvider.Metrics)

	authenticator, err := server.NewJWTAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("failed to build authenticator", zap.Error(err))
	}

	srv := server.New(cfg, svc, recorder, prompts, authenticator, promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Sugar().Infof("arbiter listening on :%d", cfg.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// buildDebateStore picks the debate.Store backing the service: a blank
// dsn (per internal/config.DatabaseConfig's documented fallback) keeps
// the in-memory store local development and tests use; a configured dsn
// runs the embedded Postgres migrations and serves off debate.SQLStore
// instead.
func buildDebateStore(dsn string) (debate.Store, error) {
	if dsn == "" {
		return debate.NewMemoryStore(), nil
	}

	migrationDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening migration connection: %w", err)
	}
	defer migrationDB.Close()
	if err := migrations.Up(migrationDB); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening gorm connection: %w", err)
	}
	return debate.NewSQLStore(gormDB)
}
