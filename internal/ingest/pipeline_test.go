package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marigraph/sealevel-rules/internal/domain"
	"github.com/marigraph/sealevel-rules/internal/observability"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]Envelope
	emitted int
}

func (s *fakeSource) FetchBatch(ctx context.Context, _ int) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emitted >= len(s.batches) {
		// Drained: block until the test cancels the run.
		s.mu.Unlock()
		<-ctx.Done()
		s.mu.Lock()
		return nil, ctx.Err()
	}
	batch := s.batches[s.emitted]
	s.emitted++
	return batch, nil
}

type fakeInserter struct {
	mu       sync.Mutex
	inserted []domain.Measurement
	failures int
}

func (i *fakeInserter) Insert(_ context.Context, ms []domain.Measurement) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.failures > 0 {
		i.failures--
		return errors.New("store unavailable")
	}
	i.inserted = append(i.inserted, ms...)
	return nil
}

func (i *fakeInserter) snapshot() []domain.Measurement {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]domain.Measurement(nil), i.inserted...)
}

func envelope(payload string, offset int64, commit func(context.Context) error) Envelope {
	return Envelope{
		Value:     []byte(payload),
		Topic:     "tide-gauge-readings",
		Partition: 0,
		Offset:    offset,
		Commit:    commit,
	}
}

func runUntilDrained(t *testing.T, p *Pipeline, drained func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, drained, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestPipeline_InsertsValidReadings(t *testing.T) {
	var commits []int64
	var mu sync.Mutex
	commit := func(offset int64) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			commits = append(commits, offset)
			return nil
		}
	}

	source := &fakeSource{batches: [][]Envelope{{
		envelope(`{"station":"Alexandria","timestamp":"2026-03-14T12:00:00Z","sea_level_m":0.21}`, 1, commit(1)),
		envelope(`{"station":"trieste","timestamp":"2026-03-14T12:00:00+01:00","sea_level_m":0.29}`, 2, commit(2)),
	}}}
	inserter := &fakeInserter{}
	p := New(source, inserter, domain.DefaultProfiles(), slog.Default(), observability.NewMetricsForTesting(), 10)

	runUntilDrained(t, p, func() bool { return len(inserter.snapshot()) == 2 })

	got := inserter.snapshot()
	assert.Equal(t, "alexandria", got[0].Station)
	assert.Equal(t, 0.21, got[0].Value)
	assert.Equal(t, time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC), got[1].Timestamp)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int64{1, 2}, commits)

	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_RejectsMalformedAndUnknown(t *testing.T) {
	var committed []int64
	var mu sync.Mutex
	commit := func(offset int64) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			committed = append(committed, offset)
			return nil
		}
	}

	source := &fakeSource{batches: [][]Envelope{{
		envelope(`not json`, 1, commit(1)),
		envelope(`{"station":"atlantis","timestamp":"2026-03-14T12:00:00Z","sea_level_m":0.2}`, 2, commit(2)),
		envelope(`{"station":"valletta","timestamp":"2026-03-14T12:00:00Z","sea_level_m":0.22}`, 3, commit(3)),
	}}}
	inserter := &fakeInserter{}
	p := New(source, inserter, domain.DefaultProfiles(), slog.Default(), observability.NewMetricsForTesting(), 10)

	runUntilDrained(t, p, func() bool { return len(inserter.snapshot()) == 1 })

	got := inserter.snapshot()
	assert.Equal(t, "valletta", got[0].Station)

	// Rejected readings still have their offsets committed so they are not
	// redelivered forever.
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int64{1, 2, 3}, committed)
}

func TestPipeline_RetriesInsertWithBackoff(t *testing.T) {
	source := &fakeSource{batches: [][]Envelope{
		{envelope(`{"station":"limassol","timestamp":"2026-03-14T12:00:00Z","sea_level_m":0.21}`, 1, nil)},
		{envelope(`{"station":"limassol","timestamp":"2026-03-14T13:00:00Z","sea_level_m":0.22}`, 2, nil)},
	}}
	inserter := &fakeInserter{failures: 1}
	p := New(source, inserter, domain.DefaultProfiles(), slog.Default(), observability.NewMetricsForTesting(), 10)

	// The first insert fails, the pipeline backs off and keeps consuming.
	runUntilDrained(t, p, func() bool { return len(inserter.snapshot()) >= 1 })
}

func TestPipeline_NotReadyBeforeFirstBatch(t *testing.T) {
	p := New(&fakeSource{}, &fakeInserter{}, domain.DefaultProfiles(), slog.Default(), observability.NewMetricsForTesting(), 10)
	assert.Error(t, p.CheckReadiness(context.Background()))
}
