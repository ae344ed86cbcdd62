package domain

import (
	"math"
	"time"
)

// Correction strategy identifiers, in priority order.
const (
	MethodInterpolation     = "interpolation"
	MethodStationBaseline   = "station_baseline"
	MethodHistoricalAverage = "historical_average"
)

const (
	// DefaultLookbackDays is the historical-average window.
	DefaultLookbackDays = 14

	// interpolationMaxGap bounds how far (in sampling intervals) each
	// interpolation anchor may sit from the flagged record.
	interpolationMaxGap = 2

	// minHistoricalSamples is the floor below which a same-hour average is
	// too thin to suggest.
	minHistoricalSamples = 3

	maxSupportingNeighbors = 3
)

// CorrectionContext carries the data a correction needs beyond the record
// itself.
type CorrectionContext struct {
	// Series is the station's ordered readings, including lookback history
	// before the query range.
	Series []Measurement
	// Flagged marks timestamps classified as outliers for this station in
	// the current query; flagged readings never anchor a correction.
	Flagged map[time.Time]bool
	// SouthernAt holds the southern reference readings at the record's
	// timestamp, used as supporting neighbors for baseline corrections.
	SouthernAt []Measurement
	// Interval is the nominal sampling interval of the gauges.
	Interval time.Duration
	// LookbackDays bounds the historical-average window; zero means
	// DefaultLookbackDays.
	LookbackDays int
}

// SuggestCorrection attempts the strategy chain for one flagged record,
// stopping at the first success. Returns false when no strategy produces a
// candidate; the caller reports the outlier unresolved rather than
// fabricating a value.
func SuggestCorrection(rec OutlierRecord, group StationGroup, ctx CorrectionContext) (CorrectionSuggestion, bool) {
	if s, ok := tryInterpolation(rec, ctx); ok {
		return s, true
	}
	if s, ok := tryStationBaseline(rec, group, ctx); ok {
		return s, true
	}
	return tryHistoricalAverage(rec, ctx)
}

// tryInterpolation anchors on the nearest clean reading on each side of the
// record, at most interpolationMaxGap sampling intervals away, and
// interpolates linearly on time. Confidence starts at 0.9 and loses 0.1 per
// extra interval of gap on either side.
func tryInterpolation(rec OutlierRecord, ctx CorrectionContext) (CorrectionSuggestion, bool) {
	if ctx.Interval <= 0 {
		return CorrectionSuggestion{}, false
	}
	maxGap := time.Duration(interpolationMaxGap) * ctx.Interval

	prev, prevOK := nearestClean(rec, ctx, -maxGap)
	next, nextOK := nearestClean(rec, ctx, maxGap)
	if !prevOK || !nextOK {
		return CorrectionSuggestion{}, false
	}

	span := next.Timestamp.Sub(prev.Timestamp)
	if span <= 0 {
		return CorrectionSuggestion{}, false
	}
	frac := float64(rec.Timestamp.Sub(prev.Timestamp)) / float64(span)
	value := prev.Value + (next.Value-prev.Value)*frac

	prevGaps := intervalsBetween(prev.Timestamp, rec.Timestamp, ctx.Interval)
	nextGaps := intervalsBetween(rec.Timestamp, next.Timestamp, ctx.Interval)
	confidence := 0.9 - 0.1*float64((prevGaps-1)+(nextGaps-1))
	if confidence < 0 {
		confidence = 0
	}

	return CorrectionSuggestion{
		Station:        rec.Station,
		Timestamp:      rec.Timestamp,
		OriginalValue:  rec.Value,
		SuggestedValue: value,
		Confidence:     confidence,
		Method:         MethodInterpolation,
		SupportingNeighbors: []Neighbor{
			{Station: prev.Station, Timestamp: prev.Timestamp, Value: prev.Value},
			{Station: next.Station, Timestamp: next.Timestamp, Value: next.Value},
		},
	}, true
}

// tryStationBaseline proposes the expected value itself. Only non-extreme
// deviations qualify: once a reading is three thresholds out, the baseline
// alone cannot be trusted to fully explain it, and the chain falls through to
// the historical average.
func tryStationBaseline(rec OutlierRecord, group StationGroup, ctx CorrectionContext) (CorrectionSuggestion, bool) {
	threshold := ThresholdFor(group)
	magnitude := math.Abs(rec.Deviation)
	if magnitude >= extremeFactor*threshold {
		return CorrectionSuggestion{}, false
	}

	// 0.95 at the threshold edge, shading toward 0.70 as the deviation
	// approaches the extreme cutoff above. The floor is never reached for a
	// deviation the strategy accepts; extreme readings get no baseline
	// suggestion at all rather than a low-confidence one.
	confidence := 0.95 - 0.25*(magnitude/(extremeFactor*threshold))
	if confidence < 0.70 {
		confidence = 0.70
	}

	var neighbors []Neighbor
	for _, m := range ctx.SouthernAt {
		if m.Station == rec.Station {
			continue
		}
		neighbors = append(neighbors, Neighbor{Station: m.Station, Timestamp: m.Timestamp.UTC(), Value: m.Value})
		if len(neighbors) == maxSupportingNeighbors {
			break
		}
	}

	return CorrectionSuggestion{
		Station:             rec.Station,
		Timestamp:           rec.Timestamp,
		OriginalValue:       rec.Value,
		SuggestedValue:      rec.ExpectedValue,
		Confidence:          confidence,
		Method:              MethodStationBaseline,
		SupportingNeighbors: neighbors,
	}, true
}

// tryHistoricalAverage averages the station's clean readings at the same
// hour-of-day over the prior lookback window. Confidence scales from 0.5
// toward 0.7 with sample count.
func tryHistoricalAverage(rec OutlierRecord, ctx CorrectionContext) (CorrectionSuggestion, bool) {
	lookback := ctx.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	windowStart := rec.Timestamp.AddDate(0, 0, -lookback)
	hour := rec.Timestamp.UTC().Hour()

	var sum float64
	var samples []Measurement
	for _, m := range ctx.Series {
		if !m.Timestamp.Before(rec.Timestamp) || m.Timestamp.Before(windowStart) {
			continue
		}
		if m.Timestamp.UTC().Hour() != hour || ctx.Flagged[m.Timestamp.UTC()] {
			continue
		}
		sum += m.Value
		samples = append(samples, m)
	}
	if len(samples) < minHistoricalSamples {
		return CorrectionSuggestion{}, false
	}

	confidence := 0.5 + 0.2*math.Min(1, float64(len(samples))/float64(DefaultLookbackDays))

	neighbors := make([]Neighbor, 0, maxSupportingNeighbors)
	for i := len(samples) - 1; i >= 0 && len(neighbors) < maxSupportingNeighbors; i-- {
		m := samples[i]
		neighbors = append(neighbors, Neighbor{Station: m.Station, Timestamp: m.Timestamp.UTC(), Value: m.Value})
	}

	return CorrectionSuggestion{
		Station:             rec.Station,
		Timestamp:           rec.Timestamp,
		OriginalValue:       rec.Value,
		SuggestedValue:      sum / float64(len(samples)),
		Confidence:          confidence,
		Method:              MethodHistoricalAverage,
		SupportingNeighbors: neighbors,
	}, true
}

// nearestClean scans the station series for the closest non-outlier reading
// within the window on one side of the record. A negative window looks
// backward, positive forward.
func nearestClean(rec OutlierRecord, ctx CorrectionContext, window time.Duration) (Measurement, bool) {
	var best Measurement
	var found bool
	for _, m := range ctx.Series {
		ts := m.Timestamp.UTC()
		if ctx.Flagged[ts] || ts.Equal(rec.Timestamp) {
			continue
		}
		if window < 0 {
			if ts.After(rec.Timestamp) || ts.Before(rec.Timestamp.Add(window)) {
				continue
			}
			if !found || ts.After(best.Timestamp) {
				best, found = m, true
			}
		} else {
			if ts.Before(rec.Timestamp) || ts.After(rec.Timestamp.Add(window)) {
				continue
			}
			if !found || ts.Before(best.Timestamp) {
				best, found = m, true
			}
		}
	}
	return best, found
}

// intervalsBetween counts sampling intervals between two timestamps, rounded
// to the nearest whole interval and never below one.
func intervalsBetween(a, b time.Time, interval time.Duration) int {
	n := int(math.Round(float64(b.Sub(a)) / float64(interval)))
	if n < 1 {
		return 1
	}
	return n
}
