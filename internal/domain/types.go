package domain

import (
	"math"
	"time"
)

// Measurement is a single station reading. Measurements are created upstream
// and never mutated here.
type Measurement struct {
	Station     string    `json:"station"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`                 // sea level in meters
	Temperature *float64  `json:"temperature,omitempty"` // water temperature in °C, if the gauge reports it
}

// Baseline is the reference value derived from the southern station group at
// one timestamp. Ephemeral: recomputed per query and discarded afterwards.
type Baseline struct {
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	SampleCount int       `json:"sample_count"`
}

// OutlierRecord describes one measurement that violated its group rule.
type OutlierRecord struct {
	Station       string    `json:"station"`
	Timestamp     time.Time `json:"timestamp"`
	Value         float64   `json:"value"`
	ExpectedValue float64   `json:"expected_value"`
	Deviation     float64   `json:"deviation"`
	Confidence    float64   `json:"confidence"`
	RuleViolated  string    `json:"rule_violated"`
}

// Neighbor is a supporting reading attached to a correction suggestion for
// auditability.
type Neighbor struct {
	Station   string    `json:"station"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// CorrectionSuggestion proposes a replacement value for a flagged record.
// Suggestions are advisory: the engine never applies them.
type CorrectionSuggestion struct {
	Station             string     `json:"station"`
	Timestamp           time.Time  `json:"timestamp"`
	OriginalValue       float64    `json:"original_value"`
	SuggestedValue      float64    `json:"suggested_value"`
	Confidence          float64    `json:"confidence"`
	Method              string     `json:"method"`
	SupportingNeighbors []Neighbor `json:"supporting_neighbors,omitempty"`
}

// ValidationStats aggregates per-query validation accounting.
type ValidationStats struct {
	TotalValidations     int     `json:"total_validations"`
	TotalExclusions      int     `json:"total_exclusions"`
	ExclusionRate        float64 `json:"exclusion_rate"`
	BaselineCalculations int     `json:"baseline_calculations"`
}

// DetectRequest scopes a detection run: a station filter (empty means all
// profiled stations) and an inclusive date range.
type DetectRequest struct {
	Stations []string  `json:"stations,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// DetectResult is the assembled response of a detection run, identical in
// shape for the live and cached paths.
type DetectResult struct {
	Outliers          []OutlierRecord `json:"outliers"`
	TotalRecords      int             `json:"total_records"`
	OutliersDetected  int             `json:"outliers_detected"`
	OutlierPercentage float64         `json:"outlier_percentage"`
	Validation        ValidationStats `json:"validation"`
}

// Performance describes how a detect_optimized request was served.
type Performance struct {
	QueryTimeSeconds float64 `json:"query_time_seconds"`
	CacheUsed        bool    `json:"cache_used"`
	RecordsProcessed int     `json:"records_processed"`
}

// OptimizedResult is a DetectResult plus execution metadata.
type OptimizedResult struct {
	DetectResult
	Performance Performance `json:"performance"`
}

// SuggestionsResult is the response of suggest_corrections.
type SuggestionsResult struct {
	Suggestions      []CorrectionSuggestion `json:"suggestions"`
	TotalSuggestions int                    `json:"total_suggestions"`
}

// RefreshResult reports the outcome of a successful cache refresh.
type RefreshResult struct {
	Success               bool    `json:"success"`
	RecordsProcessed      int     `json:"records_processed"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// CacheMetrics is the aggregate view returned by get_cache_metrics.
type CacheMetrics struct {
	CacheHitRate       float64   `json:"cache_hit_rate"`
	TotalQueries       int64     `json:"total_queries"`
	AvgQueryTimeMS     float64   `json:"avg_query_time_ms"`
	CacheLastRefreshed time.Time `json:"cache_last_refreshed"`
	CacheSize          int       `json:"cache_size"`
}

// Round3 rounds a metric value to the 3-decimal precision used in all
// serialized output. Applied once at result assembly so both execution paths
// produce byte-identical payloads.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
