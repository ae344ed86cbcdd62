package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func southernReading(station string, ts time.Time, value float64) Measurement {
	return Measurement{Station: station, Timestamp: ts, Value: value}
}

func TestFullBaseline(t *testing.T) {
	tests := []struct {
		name     string
		readings []Measurement
		expected float64
		samples  int
		ok       bool
	}{
		{
			name: "two readings meet quorum",
			readings: []Measurement{
				southernReading("alexandria", t0, 0.20),
				southernReading("valletta", t0, 0.22),
			},
			expected: 0.21,
			samples:  2,
			ok:       true,
		},
		{
			name: "three readings",
			readings: []Measurement{
				southernReading("alexandria", t0, 0.18),
				southernReading("valletta", t0, 0.21),
				southernReading("limassol", t0, 0.24),
			},
			expected: 0.21,
			samples:  3,
			ok:       true,
		},
		{
			name:     "single reading below quorum",
			readings: []Measurement{southernReading("alexandria", t0, 0.20)},
			ok:       false,
		},
		{
			name: "no readings",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := FullBaseline(t0, tt.readings)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.InDelta(t, tt.expected, b.Value, 1e-9)
			assert.Equal(t, tt.samples, b.SampleCount)
			assert.Equal(t, t0, b.Timestamp)
		})
	}
}

func TestLeaveOneOutBaseline(t *testing.T) {
	readings := []Measurement{
		southernReading("alexandria", t0, 0.18),
		southernReading("valletta", t0, 0.21),
		southernReading("limassol", t0, 0.24),
	}

	t.Run("excludes own reading", func(t *testing.T) {
		b, ok := LeaveOneOutBaseline(t0, readings, "alexandria")
		require.True(t, ok)
		assert.InDelta(t, 0.225, b.Value, 1e-9)
		assert.Equal(t, 2, b.SampleCount)
	})

	t.Run("quorum applies to remaining readings", func(t *testing.T) {
		two := readings[:2]
		_, ok := LeaveOneOutBaseline(t0, two, "alexandria")
		assert.False(t, ok, "one remaining reading is below quorum")
	})

	t.Run("excluding an absent station keeps the full mean", func(t *testing.T) {
		b, ok := LeaveOneOutBaseline(t0, readings, "trieste")
		require.True(t, ok)
		assert.InDelta(t, 0.21, b.Value, 1e-9)
		assert.Equal(t, 3, b.SampleCount)
	})
}

func TestComputeBaselines(t *testing.T) {
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)
	groups := GroupByTimestamp([]Measurement{
		southernReading("alexandria", t0, 0.20),
		southernReading("valletta", t0, 0.22),
		southernReading("alexandria", t1, 0.25), // below quorum at t1
		southernReading("alexandria", t2, 0.30),
		southernReading("valletta", t2, 0.32),
		southernReading("limassol", t2, 0.34),
	})

	baselines := ComputeBaselines(groups)

	require.Len(t, baselines, 2, "t1 is below quorum and produces no baseline")
	assert.Equal(t, t0, baselines[0].Timestamp)
	assert.InDelta(t, 0.21, baselines[0].Value, 1e-9)
	assert.Equal(t, t2, baselines[1].Timestamp)
	assert.InDelta(t, 0.32, baselines[1].Value, 1e-9)
}
