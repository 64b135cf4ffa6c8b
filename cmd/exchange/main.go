// Command exchange runs the road-event exchange service: it consumes event
// XML fragments from Kafka, reconciles them into the canonical store, and
// republishes the rendered documents.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	fetchadapter "github.com/couchcryptid/open511-exchange/internal/adapter/fetch"
	httpadapter "github.com/couchcryptid/open511-exchange/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/open511-exchange/internal/adapter/kafka"
	"github.com/couchcryptid/open511-exchange/internal/adapter/memory"
	"github.com/couchcryptid/open511-exchange/internal/adapter/postgres"
	"github.com/couchcryptid/open511-exchange/internal/config"
	"github.com/couchcryptid/open511-exchange/internal/domain"
	"github.com/couchcryptid/open511-exchange/internal/observability"
	"github.com/couchcryptid/open511-exchange/internal/pipeline"
)

// recordStore is the full persistence surface the service needs.
type recordStore interface {
	domain.JurisdictionStore
	domain.RoadEventStore
}

func main() {
	godotenv.Load() //nolint:errcheck // .env is optional

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var fetcher domain.Fetcher = fetchadapter.NewClient(cfg.FetchTimeout, logger, metrics)
	if cfg.FetchCacheSize > 0 {
		fetcher = fetchadapter.NewCachedFetcher(fetcher, cfg.FetchCacheSize, metrics)
	}

	resolver := domain.NewResolver(store, fetcher, cfg.BaseURL, logger)
	reconciler := domain.NewReconciler(store, resolver, logger)
	renderer := domain.NewRenderer(cfg.BaseURL)

	defaults := domain.ReconcileContext{
		DefaultLanguage: cfg.DefaultLanguage,
		BaseURL:         cfg.BaseURL,
	}
	if cfg.DefaultJurisdiction != "" {
		jur, err := ensureJurisdiction(ctx, store, cfg.DefaultJurisdiction)
		if err != nil {
			logger.Error("failed to ensure default jurisdiction", "error", err)
			os.Exit(1)
		}
		defaults.DefaultJurisdiction = jur
		logger.Info("default jurisdiction ready", "slug", jur.Slug)
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	processor := pipeline.NewDocumentProcessor(reconciler, renderer, store, defaults, logger)

	p := pipeline.New(reader, processor, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, store, store, renderer, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start exchange pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// openStore picks PostgreSQL when DATABASE_URL is set, the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (recordStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	pg, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close() //nolint:errcheck
		return nil, nil, err
	}
	logger.Info("using postgres store")
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Error("postgres close error", "error", err)
		}
	}, nil
}

// ensureJurisdiction loads the configured default jurisdiction, creating a
// local record on first boot.
func ensureJurisdiction(ctx context.Context, store domain.JurisdictionStore, slug string) (*domain.Jurisdiction, error) {
	jur, err := store.GetBySlug(ctx, slug)
	if err == nil {
		return jur, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	jur = domain.NewJurisdiction(slug)
	if err := store.SaveJurisdiction(ctx, jur); err != nil {
		return nil, err
	}
	return jur, nil
}
