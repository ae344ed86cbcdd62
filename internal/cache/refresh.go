package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marigraph/sealevel-rules/internal/domain"
	"github.com/marigraph/sealevel-rules/internal/observability"
)

// Detector is the live pipeline the refresher materializes results from.
type Detector interface {
	Detect(ctx context.Context, req domain.DetectRequest) (domain.DetectResult, error)
}

// Locker guards one refresh per station filter. TryLock either returns a
// release function or fails immediately; callers are never queued.
type Locker interface {
	TryLock(ctx context.Context, filter string) (func(), error)
}

// MemoryLocker is the single-instance locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewMemoryLocker creates an in-process refresh locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

// TryLock acquires the filter lock or reports a refresh conflict.
func (l *MemoryLocker) TryLock(_ context.Context, filter string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[filter] {
		return nil, &domain.RefreshConflictError{StationFilter: filter}
	}
	l.held[filter] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, filter)
	}, nil
}

// Refresher recomputes a scope through the live pipeline and swaps the result
// into the store. It is the only writer the cache has: serving a request
// never populates an entry.
type Refresher struct {
	store    Store
	detector Detector
	locker   Locker
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu            sync.Mutex
	lastRefreshed time.Time
}

// NewRefresher creates a refresher writing through the given store.
func NewRefresher(store Store, detector Detector, locker Locker, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	return &Refresher{
		store:    store,
		detector: detector,
		locker:   locker,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Refresh recomputes the scope and atomically replaces its cache entry. A
// concurrent refresh of the same station filter fails fast with a
// RefreshConflictError; the caller retries after the holder finishes.
func (r *Refresher) Refresh(ctx context.Context, scope Scope) (domain.RefreshResult, error) {
	release, err := r.locker.TryLock(ctx, scope.FilterKey())
	if err != nil {
		r.metrics.RefreshesTotal.WithLabelValues("conflict").Inc()
		return domain.RefreshResult{}, err
	}
	defer release()

	start := time.Now()
	result, err := r.detector.Detect(ctx, scope.Request())
	if err != nil {
		r.metrics.RefreshesTotal.WithLabelValues("error").Inc()
		return domain.RefreshResult{}, err
	}

	entry := Entry{
		Scope:      scope,
		ComputedAt: r.clock.Now().UTC(),
		Result:     result,
	}
	if err := r.store.Swap(ctx, entry); err != nil {
		r.metrics.RefreshesTotal.WithLabelValues("error").Inc()
		return domain.RefreshResult{}, err
	}

	elapsed := time.Since(start)
	r.mu.Lock()
	r.lastRefreshed = entry.ComputedAt
	r.mu.Unlock()

	r.metrics.RefreshesTotal.WithLabelValues("success").Inc()
	r.metrics.RefreshDuration.Observe(elapsed.Seconds())
	if size, err := r.store.Size(ctx); err == nil {
		r.metrics.CacheEntries.Set(float64(size))
	}
	r.logger.Info("cache refreshed",
		"filter", scope.FilterKey(),
		"records", result.TotalRecords,
		"outliers", result.OutliersDetected,
		"duration", elapsed)

	return domain.RefreshResult{
		Success:               true,
		RecordsProcessed:      result.TotalRecords,
		ProcessingTimeSeconds: domain.Round3(elapsed.Seconds()),
	}, nil
}

// LastRefreshed reports when any scope was last swapped in, zero if never.
func (r *Refresher) LastRefreshed() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRefreshed
}
