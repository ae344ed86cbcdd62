package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// RawReading is the flat JSON payload published by the gauge collectors.
type RawReading struct {
	Station     string   `json:"station"`
	Timestamp   string   `json:"timestamp"` // RFC 3339
	SeaLevelM   float64  `json:"sea_level_m"`
	WaterTempC  *float64 `json:"water_temp_c,omitempty"`
	GaugeSource string   `json:"source,omitempty"`
}

// ParseReading deserializes and validates one collector payload into a
// Measurement. Timestamps are normalized to UTC.
func ParseReading(value []byte) (Measurement, error) {
	var raw RawReading
	if err := json.Unmarshal(value, &raw); err != nil {
		return Measurement{}, fmt.Errorf("parse reading: %w", err)
	}

	station := strings.TrimSpace(strings.ToLower(raw.Station))
	if station == "" {
		return Measurement{}, fmt.Errorf("parse reading: missing station")
	}

	ts, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil {
		return Measurement{}, fmt.Errorf("parse reading: bad timestamp %q: %w", raw.Timestamp, err)
	}

	if math.IsNaN(raw.SeaLevelM) || math.IsInf(raw.SeaLevelM, 0) {
		return Measurement{}, fmt.Errorf("parse reading: non-finite sea level for %s", station)
	}

	return Measurement{
		Station:     station,
		Timestamp:   ts.UTC(),
		Value:       raw.SeaLevelM,
		Temperature: raw.WaterTempC,
	}, nil
}
