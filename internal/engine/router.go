package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marigraph/sealevel-rules/internal/cache"
	"github.com/marigraph/sealevel-rules/internal/domain"
	"github.com/marigraph/sealevel-rules/internal/observability"
)

// Pipeline is the live execution path the router falls back to.
type Pipeline interface {
	Detect(ctx context.Context, req domain.DetectRequest) (domain.DetectResult, error)
	SuggestCorrections(ctx context.Context, req domain.DetectRequest) (domain.SuggestionsResult, error)
}

// Router serves detection queries from the cache when a current entry exists
// and falls through to the live pipeline otherwise. Serving never writes to
// the cache; only an explicit refresh does.
type Router struct {
	live      Pipeline
	store     cache.Store
	refresher *cache.Refresher
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu           sync.Mutex
	totalQueries int64
	cacheHits    int64
	queryTime    time.Duration
}

// NewRouter creates a query router over the live pipeline and cache.
func NewRouter(live Pipeline, store cache.Store, refresher *cache.Refresher, logger *slog.Logger, metrics *observability.Metrics) *Router {
	return &Router{
		live:      live,
		store:     store,
		refresher: refresher,
		logger:    logger,
		metrics:   metrics,
	}
}

// Detect always runs the live pipeline.
func (r *Router) Detect(ctx context.Context, req domain.DetectRequest) (domain.DetectResult, error) {
	start := time.Now()
	result, err := r.live.Detect(ctx, req)
	if err != nil {
		return domain.DetectResult{}, err
	}
	r.record(time.Since(start), false)
	return result, nil
}

// DetectOptimized serves from the cache when useCache is set and a matching
// entry exists. A miss or a cache backend fault falls through to the live
// pipeline; the result payload is identical either way, only the performance
// block differs.
func (r *Router) DetectOptimized(ctx context.Context, req domain.DetectRequest, useCache bool) (domain.OptimizedResult, error) {
	start := time.Now()

	if useCache {
		key := cache.NewScope(req).Key()
		entry, ok, err := r.store.Get(ctx, key)
		if err != nil {
			r.metrics.CacheLookups.WithLabelValues("error").Inc()
			r.logger.Warn("cache lookup failed, serving live", "error", err)
		} else if ok {
			elapsed := time.Since(start)
			r.metrics.CacheLookups.WithLabelValues("hit").Inc()
			r.metrics.DetectionsTotal.WithLabelValues("cached").Inc()
			r.metrics.DetectionDuration.WithLabelValues("cached").Observe(elapsed.Seconds())
			r.record(elapsed, true)
			return domain.OptimizedResult{
				DetectResult: entry.Result,
				Performance: domain.Performance{
					QueryTimeSeconds: domain.Round3(elapsed.Seconds()),
					CacheUsed:        true,
					RecordsProcessed: entry.Result.TotalRecords,
				},
			}, nil
		} else {
			r.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	result, err := r.live.Detect(ctx, req)
	if err != nil {
		return domain.OptimizedResult{}, err
	}
	elapsed := time.Since(start)
	r.record(elapsed, false)
	return domain.OptimizedResult{
		DetectResult: result,
		Performance: domain.Performance{
			QueryTimeSeconds: domain.Round3(elapsed.Seconds()),
			CacheUsed:        false,
			RecordsProcessed: result.TotalRecords,
		},
	}, nil
}

// SuggestCorrections delegates to the live pipeline; corrections are always
// computed fresh.
func (r *Router) SuggestCorrections(ctx context.Context, req domain.DetectRequest) (domain.SuggestionsResult, error) {
	return r.live.SuggestCorrections(ctx, req)
}

// RefreshCache recomputes the scope and installs it in the cache.
func (r *Router) RefreshCache(ctx context.Context, req domain.DetectRequest) (domain.RefreshResult, error) {
	return r.refresher.Refresh(ctx, cache.NewScope(req))
}

// CacheMetrics reports aggregate query and cache statistics since startup.
func (r *Router) CacheMetrics(ctx context.Context) (domain.CacheMetrics, error) {
	size, err := r.store.Size(ctx)
	if err != nil {
		return domain.CacheMetrics{}, err
	}

	r.mu.Lock()
	total, hits, spent := r.totalQueries, r.cacheHits, r.queryTime
	r.mu.Unlock()

	m := domain.CacheMetrics{
		TotalQueries:       total,
		CacheLastRefreshed: r.refresher.LastRefreshed(),
		CacheSize:          size,
	}
	if total > 0 {
		m.CacheHitRate = domain.Round3(float64(hits) / float64(total))
		m.AvgQueryTimeMS = domain.Round3(spent.Seconds() * 1000 / float64(total))
	}
	return m, nil
}

func (r *Router) record(elapsed time.Duration, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalQueries++
	r.queryTime += elapsed
	if hit {
		r.cacheHits++
	}
}
