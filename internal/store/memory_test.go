package store

import (
	"context"
	"testing"
	"time"

	"github.com/marigraph/sealevel-rules/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FetchOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	// Insert out of order across two stations.
	require.NoError(t, s.Insert(ctx, []domain.Measurement{
		{Station: "valletta", Timestamp: base.Add(2 * time.Hour), Value: 0.22},
		{Station: "alexandria", Timestamp: base.Add(time.Hour), Value: 0.20},
		{Station: "alexandria", Timestamp: base, Value: 0.19},
		{Station: "valletta", Timestamp: base.Add(time.Hour), Value: 0.21},
	}))

	got, err := s.Fetch(ctx, []string{"alexandria", "valletta"}, base, base.Add(2*time.Hour))
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, "alexandria", got[0].Station)
	assert.Equal(t, base, got[0].Timestamp)
	assert.Equal(t, "alexandria", got[1].Station)
	assert.Equal(t, "valletta", got[2].Station)
	assert.Equal(t, base.Add(time.Hour), got[2].Timestamp)
	assert.Equal(t, "valletta", got[3].Station)
}

func TestMemoryStore_FetchRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	var ms []domain.Measurement
	for i := 0; i < 10; i++ {
		ms = append(ms, domain.Measurement{Station: "trieste", Timestamp: base.Add(time.Duration(i) * time.Hour), Value: float64(i)})
	}
	require.NoError(t, s.Insert(ctx, ms))

	t.Run("inclusive bounds", func(t *testing.T) {
		got, err := s.Fetch(ctx, []string{"trieste"}, base.Add(2*time.Hour), base.Add(4*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, 2.0, got[0].Value)
		assert.Equal(t, 4.0, got[2].Value)
	})

	t.Run("empty range", func(t *testing.T) {
		got, err := s.Fetch(ctx, []string{"trieste"}, base.Add(24*time.Hour), base.Add(48*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown station", func(t *testing.T) {
		got, err := s.Fetch(ctx, []string{"atlantis"}, base, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryStore_DuplicateReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, []domain.Measurement{{Station: "baku", Timestamp: ts, Value: 0.50}}))
	require.NoError(t, s.Insert(ctx, []domain.Measurement{{Station: "baku", Timestamp: ts, Value: 0.51}}))

	got, err := s.Fetch(ctx, []string{"baku"}, ts, ts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.51, got[0].Value)
	assert.Equal(t, 1, s.Count())
}
