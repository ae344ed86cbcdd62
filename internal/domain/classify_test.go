package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		station    string
		group      StationGroup
		value      float64
		expected   float64
		outlier    bool
		rule       string
		confidence float64
	}{
		{
			// Scenario: baseline 0.21, northern offset +0.08 → expected 0.29;
			// a 0.35 reading deviates 0.06 > 0.05.
			name:       "northern deviation above threshold",
			station:    "trieste",
			group:      GroupNorthern,
			value:      0.35,
			expected:   0.29,
			outlier:    true,
			rule:       RuleNorthernOffset,
			confidence: 0.4,
		},
		{
			name:     "northern deviation at threshold passes",
			station:  "trieste",
			group:    GroupNorthern,
			value:    0.34,
			expected: 0.29,
			outlier:  false,
		},
		{
			name:       "southern stricter threshold",
			station:    "alexandria",
			group:      GroupSouthern,
			value:      0.25,
			expected:   0.21,
			outlier:    true,
			rule:       RuleSouthernBaseline,
			confidence: 0.04 / 0.09,
		},
		{
			name:     "southern deviation below threshold passes",
			station:  "alexandria",
			group:    GroupSouthern,
			value:    0.235,
			expected: 0.21,
			outlier:  false,
		},
		{
			name:       "negative deviation flagged",
			station:    "trieste",
			group:      GroupNorthern,
			value:      0.20,
			expected:   0.29,
			outlier:    true,
			rule:       RuleNorthernOffset,
			confidence: 0.6,
		},
		{
			name:       "extreme deviation saturates confidence",
			station:    "alexandria",
			group:      GroupSouthern,
			value:      0.75,
			expected:   0.21,
			outlier:    true,
			rule:       RuleExtremeDeviation,
			confidence: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Measurement{Station: tt.station, Timestamp: t0, Value: tt.value}
			rec, outlier := Classify(m, tt.expected, tt.group)

			require.Equal(t, tt.outlier, outlier)
			if !outlier {
				return
			}
			assert.Equal(t, tt.station, rec.Station)
			assert.Equal(t, t0, rec.Timestamp)
			assert.Equal(t, tt.rule, rec.RuleViolated)
			assert.InDelta(t, tt.value-tt.expected, rec.Deviation, 1e-9)
			assert.InDelta(t, tt.confidence, rec.Confidence, 1e-9)
			assert.GreaterOrEqual(t, rec.Confidence, 0.0)
			assert.LessOrEqual(t, rec.Confidence, 1.0)
		})
	}
}

func TestThresholdFor(t *testing.T) {
	assert.Equal(t, ThresholdSouthern, ThresholdFor(GroupSouthern))
	assert.Equal(t, ThresholdNorthern, ThresholdFor(GroupNorthern))
	assert.Less(t, ThresholdSouthern, ThresholdNorthern,
		"the reference group is held to a stricter threshold")
}
