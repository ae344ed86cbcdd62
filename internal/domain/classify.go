package domain

import "math"

// Group thresholds in meters. The southern threshold is stricter because the
// reference group defines the baseline everyone else is measured against.
const (
	ThresholdSouthern = 0.03
	ThresholdNorthern = 0.05

	// extremeFactor scales the threshold to the point where confidence
	// saturates and the violation is reported as extreme.
	extremeFactor = 3.0
)

// Rule identifiers carried in OutlierRecord.RuleViolated.
const (
	RuleNorthernOffset   = "northern_offset_violation"
	RuleSouthernBaseline = "southern_baseline_violation"
	RuleExtremeDeviation = "extreme_deviation"
)

// ThresholdFor returns the outlier threshold for a station group. Basin
// stations have no threshold; they are never classified.
func ThresholdFor(group StationGroup) float64 {
	if group == GroupSouthern {
		return ThresholdSouthern
	}
	return ThresholdNorthern
}

// Classify evaluates one measurement against its expected value. It is a pure
// function: no hidden state, and the classification of one record never
// depends on another record's classification.
//
// Confidence ramps linearly as |deviation|/(3·threshold), saturating at 1.0.
func Classify(m Measurement, expected float64, group StationGroup) (OutlierRecord, bool) {
	threshold := ThresholdFor(group)
	deviation := m.Value - expected
	magnitude := math.Abs(deviation)

	if magnitude <= threshold {
		return OutlierRecord{}, false
	}

	confidence := math.Min(1.0, magnitude/(extremeFactor*threshold))

	rule := RuleNorthernOffset
	switch {
	case magnitude >= extremeFactor*threshold:
		rule = RuleExtremeDeviation
	case group == GroupSouthern:
		rule = RuleSouthernBaseline
	}

	return OutlierRecord{
		Station:       m.Station,
		Timestamp:     m.Timestamp.UTC(),
		Value:         m.Value,
		ExpectedValue: expected,
		Deviation:     deviation,
		Confidence:    confidence,
		RuleViolated:  rule,
	}, true
}
