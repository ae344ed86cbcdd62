package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marigraph/sealevel-rules/internal/domain"
)

func scopeForStations(stations ...string) Scope {
	return NewScope(domain.DetectRequest{
		Stations: stations,
		Start:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
	})
}

func TestScopeKey_OrderInsensitive(t *testing.T) {
	a := scopeForStations("trieste", "antalya")
	b := scopeForStations("antalya", "trieste")
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "antalya,trieste", a.FilterKey())
}

func TestScopeKey_IncludesRulesetVersion(t *testing.T) {
	s := scopeForStations("trieste")
	assert.Contains(t, s.Key(), domain.RulesetVersion)
}

func TestMemoryStore_GetMissingKey(t *testing.T) {
	s := NewMemoryStore(4)
	_, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_SwapAndGet(t *testing.T) {
	s := NewMemoryStore(4)
	entry := Entry{
		Scope:      scopeForStations("trieste"),
		ComputedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Result:     domain.DetectResult{TotalRecords: 7},
	}
	require.NoError(t, s.Swap(context.Background(), entry))

	got, ok, err := s.Get(context.Background(), entry.Scope.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, got)

	n, err := s.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_SwapReplacesEntry(t *testing.T) {
	s := NewMemoryStore(4)
	scope := scopeForStations("trieste")
	require.NoError(t, s.Swap(context.Background(), Entry{Scope: scope, Result: domain.DetectResult{TotalRecords: 1}}))
	require.NoError(t, s.Swap(context.Background(), Entry{Scope: scope, Result: domain.DetectResult{TotalRecords: 2}}))

	got, ok, err := s.Get(context.Background(), scope.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Result.TotalRecords)

	n, err := s.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewMemoryStore(2)
	first := scopeForStations("alexandria")
	second := scopeForStations("valletta")
	third := scopeForStations("trieste")

	require.NoError(t, s.Swap(context.Background(), Entry{Scope: first}))
	require.NoError(t, s.Swap(context.Background(), Entry{Scope: second}))

	// Touch first so second becomes the eviction candidate.
	_, ok, err := s.Get(context.Background(), first.Key())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Swap(context.Background(), Entry{Scope: third}))

	_, ok, _ = s.Get(context.Background(), second.Key())
	assert.False(t, ok)
	_, ok, _ = s.Get(context.Background(), first.Key())
	assert.True(t, ok)

	n, err := s.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_BoundHolds(t *testing.T) {
	s := NewMemoryStore(8)
	for i := 0; i < 50; i++ {
		scope := scopeForStations(fmt.Sprintf("station-%d", i))
		require.NoError(t, s.Swap(context.Background(), Entry{Scope: scope}))
	}
	n, err := s.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}
