package domain

import (
	"sort"
	"time"
)

// BaselineQuorum is the minimum number of southern readings required before a
// baseline (full or leave-one-out) exists for a timestamp.
const BaselineQuorum = 2

// GroupByTimestamp buckets southern reference readings by timestamp. The
// per-timestamp slices keep the input order, which the store guarantees to be
// (timestamp, station).
func GroupByTimestamp(readings []Measurement) map[time.Time][]Measurement {
	groups := make(map[time.Time][]Measurement)
	for _, m := range readings {
		key := m.Timestamp.UTC()
		groups[key] = append(groups[key], m)
	}
	return groups
}

// ComputeBaselines derives the ordered baseline sequence from grouped
// southern readings. Timestamps below quorum produce no entry.
func ComputeBaselines(groups map[time.Time][]Measurement) []Baseline {
	baselines := make([]Baseline, 0, len(groups))
	for ts, readings := range groups {
		if b, ok := FullBaseline(ts, readings); ok {
			baselines = append(baselines, b)
		}
	}
	sort.Slice(baselines, func(i, j int) bool {
		return baselines[i].Timestamp.Before(baselines[j].Timestamp)
	})
	return baselines
}

// FullBaseline computes the reference mean across all southern readings at
// one timestamp. Returns false when fewer than BaselineQuorum readings exist.
func FullBaseline(ts time.Time, readings []Measurement) (Baseline, bool) {
	if len(readings) < BaselineQuorum {
		return Baseline{}, false
	}
	var sum float64
	for _, m := range readings {
		sum += m.Value
	}
	return Baseline{
		Timestamp:   ts.UTC(),
		Value:       sum / float64(len(readings)),
		SampleCount: len(readings),
	}, true
}

// LeaveOneOutBaseline computes the reference mean excluding one station's own
// reading, so a southern station is never validated against itself. The same
// quorum applies to the remaining readings.
func LeaveOneOutBaseline(ts time.Time, readings []Measurement, exclude string) (Baseline, bool) {
	var sum float64
	var count int
	for _, m := range readings {
		if m.Station == exclude {
			continue
		}
		sum += m.Value
		count++
	}
	if count < BaselineQuorum {
		return Baseline{}, false
	}
	return Baseline{Timestamp: ts.UTC(), Value: sum / float64(count), SampleCount: count}, true
}
