// Package store provides measurement storage backends for the detection
// engine: an in-memory store fed by the ingest pipeline, and a Postgres
// backend that pushes the baseline math into SQL window functions.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marigraph/sealevel-rules/internal/domain"
)

// MemoryStore keeps per-station time series ordered by timestamp. It is the
// default MeasurementStore for single-node deployments and for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[string][]domain.Measurement
}

// NewMemoryStore creates an empty in-memory measurement store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{series: make(map[string][]domain.Measurement)}
}

// Insert adds measurements, keeping each station's series sorted. A reading
// with a duplicate (station, timestamp) replaces the earlier one; gauges
// occasionally re-transmit.
func (s *MemoryStore) Insert(_ context.Context, ms []domain.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range ms {
		m.Timestamp = m.Timestamp.UTC()
		series := s.series[m.Station]
		i := sort.Search(len(series), func(i int) bool {
			return !series[i].Timestamp.Before(m.Timestamp)
		})
		if i < len(series) && series[i].Timestamp.Equal(m.Timestamp) {
			series[i] = m
			continue
		}
		series = append(series, domain.Measurement{})
		copy(series[i+1:], series[i:])
		series[i] = m
		s.series[m.Station] = series
	}
	return nil
}

// Fetch returns the measurements for the given stations within [start, end]
// (inclusive), ordered by (timestamp, station).
func (s *MemoryStore) Fetch(_ context.Context, stations []string, start, end time.Time) ([]domain.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Measurement
	for _, station := range stations {
		series := s.series[station]
		i := sort.Search(len(series), func(i int) bool {
			return !series[i].Timestamp.Before(start)
		})
		for ; i < len(series) && !series[i].Timestamp.After(end); i++ {
			out = append(out, series[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Station < out[j].Station
	})
	return out, nil
}

// Count returns the total number of stored measurements.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, series := range s.series {
		n += len(series)
	}
	return n
}
