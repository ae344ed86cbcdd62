// Package ingest runs the gauge-reading intake loop: fetch a batch from the
// source topic, parse and validate each payload, insert the survivors into
// the measurement store, then commit offsets.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/marigraph/sealevel-rules/internal/domain"
	"github.com/marigraph/sealevel-rules/internal/observability"
)

// Envelope is one raw message from the source, with enough position metadata
// for logging and a deferred commit.
type Envelope struct {
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Commit    func(ctx context.Context) error
}

// BatchSource reads up to batchSize envelopes from the source.
type BatchSource interface {
	FetchBatch(ctx context.Context, batchSize int) ([]Envelope, error)
}

// Inserter writes parsed measurements to the store.
type Inserter interface {
	Insert(ctx context.Context, ms []domain.Measurement) error
}

// Pipeline orchestrates the fetch-parse-insert loop.
type Pipeline struct {
	source    BatchSource
	inserter  Inserter
	profiles  domain.StationSet
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(source BatchSource, inserter Inserter, profiles domain.StationSet, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		source:    source,
		inserter:  inserter,
		profiles:  profiles,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has inserted at least one
// batch, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("ingest has not processed any readings yet")
	}
	return nil
}

// Run executes the intake loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("ingest started", "batch_size", p.batchSize)
	p.metrics.IngestRunning.Set(1)
	defer p.metrics.IngestRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("ingest stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one fetch-parse-insert cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	batch, err := p.source.FetchBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("fetch batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.ReadingsConsumed.Add(float64(len(batch)))
	p.metrics.IngestBatchSize.Observe(float64(len(batch)))
	*backoff = 200 * time.Millisecond

	measurements := make([]domain.Measurement, 0, len(batch))
	accepted := make([]Envelope, 0, len(batch))
	for _, env := range batch {
		m, err := domain.ParseReading(env.Value)
		if err != nil {
			p.logger.Warn("rejecting reading",
				"error", err,
				"topic", env.Topic,
				"partition", env.Partition,
				"offset", env.Offset,
			)
			p.metrics.ReadingsRejected.Inc()
			p.commitOffset(ctx, env)
			continue
		}
		if !p.profiles.Known(m.Station) {
			p.logger.Warn("rejecting reading from unprofiled station",
				"station", m.Station, "offset", env.Offset)
			p.metrics.ReadingsRejected.Inc()
			p.commitOffset(ctx, env)
			continue
		}
		measurements = append(measurements, m)
		accepted = append(accepted, env)
	}

	if len(measurements) == 0 {
		return true
	}

	if err := p.inserter.Insert(ctx, measurements); err != nil {
		p.logger.Error("insert batch failed", "error", err, "batch_size", len(measurements))
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	for _, env := range accepted {
		p.commitOffset(ctx, env)
	}
	p.ready.Store(true)
	return true
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func (p *Pipeline) commitOffset(ctx context.Context, env Envelope) {
	if env.Commit == nil {
		return
	}
	if err := env.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", env.Topic, "partition", env.Partition, "offset", env.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
