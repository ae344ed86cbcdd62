package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stationSeries(station string, start time.Time, interval time.Duration, values ...float64) []Measurement {
	series := make([]Measurement, len(values))
	for i, v := range values {
		series[i] = Measurement{Station: station, Timestamp: start.Add(time.Duration(i) * interval), Value: v}
	}
	return series
}

func flaggedRecord(station string, ts time.Time, value, expected float64) OutlierRecord {
	rec, outlier := Classify(Measurement{Station: station, Timestamp: ts, Value: value}, expected, GroupNorthern)
	if !outlier {
		panic("test record is not an outlier")
	}
	return rec
}

func TestSuggestCorrection_Interpolation(t *testing.T) {
	interval := time.Hour
	start := t0.Add(-2 * time.Hour)
	// Readings at t0-2h .. t0+2h; the t0 reading is the flagged spike.
	series := stationSeries("trieste", start, interval, 0.28, 0.29, 0.90, 0.31, 0.32)
	rec := flaggedRecord("trieste", t0, 0.90, 0.29)

	ctx := CorrectionContext{
		Series:   series,
		Flagged:  map[time.Time]bool{t0: true},
		Interval: interval,
	}

	s, ok := SuggestCorrection(rec, GroupNorthern, ctx)
	require.True(t, ok)
	assert.Equal(t, MethodInterpolation, s.Method)
	// Adjacent anchors on both sides: midpoint of 0.29 and 0.31.
	assert.InDelta(t, 0.30, s.SuggestedValue, 1e-9)
	assert.InDelta(t, 0.9, s.Confidence, 1e-9)
	require.Len(t, s.SupportingNeighbors, 2)
	assert.Equal(t, t0.Add(-time.Hour), s.SupportingNeighbors[0].Timestamp)
	assert.Equal(t, t0.Add(time.Hour), s.SupportingNeighbors[1].Timestamp)
}

func TestSuggestCorrection_InterpolationGapPenalty(t *testing.T) {
	interval := time.Hour
	// Prior anchor two intervals back (the adjacent reading is also flagged),
	// next anchor adjacent.
	series := []Measurement{
		{Station: "trieste", Timestamp: t0.Add(-2 * time.Hour), Value: 0.28},
		{Station: "trieste", Timestamp: t0.Add(-time.Hour), Value: 0.85},
		{Station: "trieste", Timestamp: t0, Value: 0.90},
		{Station: "trieste", Timestamp: t0.Add(time.Hour), Value: 0.31},
	}
	rec := flaggedRecord("trieste", t0, 0.90, 0.29)
	ctx := CorrectionContext{
		Series:   series,
		Flagged:  map[time.Time]bool{t0: true, t0.Add(-time.Hour): true},
		Interval: interval,
	}

	s, ok := SuggestCorrection(rec, GroupNorthern, ctx)
	require.True(t, ok)
	assert.Equal(t, MethodInterpolation, s.Method)
	// One extra interval of gap on the prior side: 0.9 − 0.1.
	assert.InDelta(t, 0.8, s.Confidence, 1e-9)
	// Linear on time: two thirds of the way from 0.28 to 0.31.
	assert.InDelta(t, 0.30, s.SuggestedValue, 1e-9)
}

func TestSuggestCorrection_PriorityOrder(t *testing.T) {
	// Interpolation anchors exist, so the baseline and historical strategies
	// must never win even though both could produce a candidate.
	interval := time.Hour
	series := stationSeries("trieste", t0.Add(-time.Hour), interval, 0.29, 0.90, 0.31)
	rec := flaggedRecord("trieste", t0, 0.90, 0.29)
	ctx := CorrectionContext{
		Series:  series,
		Flagged: map[time.Time]bool{t0: true},
		SouthernAt: []Measurement{
			southernReading("alexandria", t0, 0.20),
			southernReading("valletta", t0, 0.22),
		},
		Interval: interval,
	}

	s, ok := SuggestCorrection(rec, GroupNorthern, ctx)
	require.True(t, ok)
	assert.Equal(t, MethodInterpolation, s.Method)
}

func TestSuggestCorrection_StationBaseline(t *testing.T) {
	// No clean anchor within two intervals on the prior side.
	rec := flaggedRecord("trieste", t0, 0.36, 0.29)
	ctx := CorrectionContext{
		Series:   []Measurement{{Station: "trieste", Timestamp: t0, Value: 0.36}},
		Flagged:  map[time.Time]bool{t0: true},
		Interval: time.Hour,
		SouthernAt: []Measurement{
			southernReading("alexandria", t0, 0.20),
			southernReading("valletta", t0, 0.22),
		},
	}

	s, ok := SuggestCorrection(rec, GroupNorthern, ctx)
	require.True(t, ok)
	assert.Equal(t, MethodStationBaseline, s.Method)
	assert.InDelta(t, 0.29, s.SuggestedValue, 1e-9)
	assert.GreaterOrEqual(t, s.Confidence, 0.70)
	assert.LessOrEqual(t, s.Confidence, 0.95)
	require.Len(t, s.SupportingNeighbors, 2)
	assert.Equal(t, "alexandria", s.SupportingNeighbors[0].Station)
}

func TestSuggestCorrection_HistoricalAverage(t *testing.T) {
	// Extreme deviation: interpolation has no anchors, the baseline strategy
	// refuses, and the same-hour history over prior days answers.
	rec := flaggedRecord("trieste", t0, 1.50, 0.29)
	require.Equal(t, RuleExtremeDeviation, rec.RuleViolated)

	series := []Measurement{
		{Station: "trieste", Timestamp: t0.AddDate(0, 0, -3), Value: 0.30},
		{Station: "trieste", Timestamp: t0.AddDate(0, 0, -2), Value: 0.32},
		{Station: "trieste", Timestamp: t0.AddDate(0, 0, -1), Value: 0.28},
		{Station: "trieste", Timestamp: t0, Value: 1.50},
	}
	ctx := CorrectionContext{
		Series:   series,
		Flagged:  map[time.Time]bool{t0: true},
		Interval: time.Hour,
	}

	s, ok := SuggestCorrection(rec, GroupNorthern, ctx)
	require.True(t, ok)
	assert.Equal(t, MethodHistoricalAverage, s.Method)
	assert.InDelta(t, 0.30, s.SuggestedValue, 1e-9)
	assert.GreaterOrEqual(t, s.Confidence, 0.5)
	assert.LessOrEqual(t, s.Confidence, 0.7)
	assert.Len(t, s.SupportingNeighbors, 3)
}

func TestSuggestCorrection_NoStrategySucceeds(t *testing.T) {
	// Extreme deviation, no neighbors, no history: the record must be
	// reported unresolved, never given a fabricated value.
	rec := flaggedRecord("trieste", t0, 1.50, 0.29)
	ctx := CorrectionContext{
		Series:   []Measurement{{Station: "trieste", Timestamp: t0, Value: 1.50}},
		Flagged:  map[time.Time]bool{t0: true},
		Interval: time.Hour,
	}

	_, ok := SuggestCorrection(rec, GroupNorthern, ctx)
	assert.False(t, ok)
}

func TestSuggestCorrection_HistoricalQuorum(t *testing.T) {
	rec := flaggedRecord("trieste", t0, 1.50, 0.29)
	series := []Measurement{
		{Station: "trieste", Timestamp: t0.AddDate(0, 0, -2), Value: 0.32},
		{Station: "trieste", Timestamp: t0.AddDate(0, 0, -1), Value: 0.28},
		{Station: "trieste", Timestamp: t0, Value: 1.50},
	}
	ctx := CorrectionContext{
		Series:   series,
		Flagged:  map[time.Time]bool{t0: true},
		Interval: time.Hour,
	}

	_, ok := SuggestCorrection(rec, GroupNorthern, ctx)
	assert.False(t, ok, "two same-hour samples are below the historical quorum")
}
