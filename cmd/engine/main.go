package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	httpadapter "github.com/marigraph/sealevel-rules/internal/adapter/http"
	kafkaadapter "github.com/marigraph/sealevel-rules/internal/adapter/kafka"
	"github.com/marigraph/sealevel-rules/internal/cache"
	"github.com/marigraph/sealevel-rules/internal/config"
	"github.com/marigraph/sealevel-rules/internal/domain"
	"github.com/marigraph/sealevel-rules/internal/engine"
	"github.com/marigraph/sealevel-rules/internal/ingest"
	"github.com/marigraph/sealevel-rules/internal/observability"
	"github.com/marigraph/sealevel-rules/internal/store"
)

type measurementStore interface {
	engine.Store
	ingest.Inserter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	stations, err := cfg.Stations()
	if err != nil {
		logger.Error("failed to load station profiles", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var measurements measurementStore
	if cfg.PostgresDSN != "" {
		pg, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to connect postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare postgres schema", "error", err)
			os.Exit(1)
		}
		measurements = pg
		logger.Info("measurement store: postgres")
	} else {
		measurements = store.NewMemoryStore()
		logger.Info("measurement store: memory")
	}

	var cacheStore cache.Store
	var locker cache.Locker
	if cfg.CacheBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		cacheStore = cache.NewRedisStore(client, "", 0)
		locker = cache.NewRedisLocker(client, "", 0)
		logger.Info("cache backend: redis", "addr", cfg.RedisAddr)
	} else {
		cacheStore = cache.NewMemoryStore(cfg.CacheMaxEntries)
		locker = cache.NewMemoryLocker()
		logger.Info("cache backend: memory", "max_entries", cfg.CacheMaxEntries)
	}

	limits := engine.Limits{
		Timeout:          cfg.DetectTimeout,
		MaxRows:          cfg.MaxRows,
		SamplingInterval: cfg.SamplingInterval,
		LookbackDays:     cfg.LookbackDays,
	}
	detector := engine.NewDetector(measurements, stations, limits, logger, metrics)
	refresher := cache.NewRefresher(cacheStore, detector, locker, clockwork.NewRealClock(), logger, metrics)
	router := engine.NewRouter(detector, cacheStore, refresher, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	intake := ingest.New(reader, measurements, stations, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, intake, router, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := intake.Run(ctx); err != nil {
			logger.Error("ingest error", "error", err)
		}
	}()

	go runScheduler(ctx, cfg, router, writer, metrics, logger)

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

// runScheduler periodically refreshes the cache over the trailing detection
// window and publishes correction suggestions for whatever it flagged.
func runScheduler(ctx context.Context, cfg *config.Config, router *engine.Router, writer *kafkaadapter.Writer, metrics *observability.Metrics, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		end := time.Now().UTC().Truncate(cfg.SamplingInterval)
		req := domain.DetectRequest{Start: end.Add(-cfg.DetectWindow), End: end}

		if _, err := router.RefreshCache(ctx, req); err != nil {
			var conflict *domain.RefreshConflictError
			if errors.As(err, &conflict) {
				logger.Info("refresh already in progress", "filter", conflict.StationFilter)
			} else {
				logger.Error("scheduled refresh failed", "error", err)
			}
			continue
		}

		suggestions, err := router.SuggestCorrections(ctx, req)
		if err != nil {
			logger.Error("suggestion pass failed", "error", err)
			continue
		}
		if suggestions.TotalSuggestions == 0 {
			continue
		}
		if err := writer.PublishBatch(ctx, suggestions.Suggestions); err != nil {
			logger.Error("suggestion publish failed", "error", err)
			continue
		}
		metrics.SuggestionsPublished.Add(float64(suggestions.TotalSuggestions))
		logger.Info("suggestions published", "count", suggestions.TotalSuggestions)
	}
}
