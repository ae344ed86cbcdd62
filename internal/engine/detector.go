// Package engine runs the Southern Baseline Rules pipeline over a
// measurement store and routes queries between the live path and the
// precomputed outlier cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/marigraph/sealevel-rules/internal/domain"
	"github.com/marigraph/sealevel-rules/internal/observability"
)

// Store is the measurement source the engine reads from. Implementations
// must return measurements ordered by (timestamp, station).
type Store interface {
	Fetch(ctx context.Context, stations []string, start, end time.Time) ([]domain.Measurement, error)
}

// Limits are the hard query bounds of the live path. Exceeding either aborts
// the request; a truncated result is never returned.
type Limits struct {
	Timeout          time.Duration
	MaxRows          int
	SamplingInterval time.Duration
	LookbackDays     int
}

// DefaultLimits returns the standard deployment bounds.
func DefaultLimits() Limits {
	return Limits{
		Timeout:          30 * time.Second,
		MaxRows:          5000,
		SamplingInterval: time.Hour,
		LookbackDays:     domain.DefaultLookbackDays,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	if l.MaxRows <= 0 {
		l.MaxRows = d.MaxRows
	}
	if l.SamplingInterval <= 0 {
		l.SamplingInterval = d.SamplingInterval
	}
	if l.LookbackDays <= 0 {
		l.LookbackDays = d.LookbackDays
	}
	return l
}

// Detector is the live execution path: it runs the full pipeline fresh per
// request and is the correctness reference the cache must match.
type Detector struct {
	store    Store
	profiles domain.StationSet
	resolver *domain.ExpectedResolver
	limits   Limits
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewDetector creates the live detector.
func NewDetector(store Store, profiles domain.StationSet, limits Limits, logger *slog.Logger, metrics *observability.Metrics) *Detector {
	return &Detector{
		store:    store,
		profiles: profiles,
		resolver: domain.NewExpectedResolver(profiles),
		limits:   limits.withDefaults(),
		logger:   logger,
		metrics:  metrics,
	}
}

// Detect runs baseline derivation, expected-value resolution, and
// classification over the requested scope. An empty measurement range is a
// valid all-zero result, not an error.
func (d *Detector) Detect(ctx context.Context, req domain.DetectRequest) (domain.DetectResult, error) {
	start := time.Now()
	result, err := d.detect(ctx, req)
	if err != nil {
		return domain.DetectResult{}, err
	}

	d.metrics.DetectionsTotal.WithLabelValues("live").Inc()
	d.metrics.DetectionDuration.WithLabelValues("live").Observe(time.Since(start).Seconds())
	d.metrics.OutliersFlagged.Add(float64(result.OutliersDetected))
	d.metrics.Exclusions.Add(float64(result.Validation.TotalExclusions))
	return result, nil
}

func (d *Detector) detect(ctx context.Context, req domain.DetectRequest) (domain.DetectResult, error) {
	stations, err := d.normalize(req)
	if err != nil {
		return domain.DetectResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.limits.Timeout)
	defer cancel()

	target, err := d.store.Fetch(ctx, stations, req.Start, req.End)
	if err != nil {
		return domain.DetectResult{}, d.fetchErr(ctx, err)
	}
	if len(target) > d.limits.MaxRows {
		return domain.DetectResult{}, &domain.ResourceLimitError{
			Limit:     "rows",
			Requested: int64(len(target)),
			Allowed:   int64(d.limits.MaxRows),
		}
	}

	southern, err := d.store.Fetch(ctx, d.profiles.Southern(), req.Start, req.End)
	if err != nil {
		return domain.DetectResult{}, d.fetchErr(ctx, err)
	}
	groups := domain.GroupByTimestamp(southern)

	// Full baselines are memoized per timestamp; leave-one-out baselines are
	// per record. Both count toward baseline_calculations when they meet
	// quorum.
	type memo struct {
		baseline domain.Baseline
		ok       bool
	}
	fullBaselines := make(map[time.Time]memo)
	var stats domain.ValidationStats

	outliers := make([]domain.OutlierRecord, 0)
	for _, m := range target {
		if ctx.Err() != nil {
			return domain.DetectResult{}, d.fetchErr(ctx, ctx.Err())
		}

		ts := m.Timestamp.UTC()
		group := d.profiles.Group(m.Station)
		if group == domain.GroupBasin {
			// Disconnected basin: counted in total_records, never validated.
			continue
		}

		var full memo
		if group != domain.GroupSouthern {
			var cached bool
			if full, cached = fullBaselines[ts]; !cached {
				full.baseline, full.ok = domain.FullBaseline(ts, groups[ts])
				fullBaselines[ts] = full
				if full.ok {
					stats.BaselineCalculations++
				}
			}
		}

		res := d.resolver.Resolve(m, groups[ts], full.baseline, full.ok)
		switch res.Outcome {
		case domain.NotValidated:
			continue
		case domain.NoBaseline:
			stats.TotalExclusions++
			continue
		}
		if res.BaselineComputed {
			stats.BaselineCalculations++
		}
		if math.IsNaN(res.Expected) || math.IsInf(res.Expected, 0) {
			d.logger.Error("degenerate expected value",
				"station", m.Station, "timestamp", ts, "value", m.Value)
			return domain.DetectResult{}, &domain.ComputationError{
				Stage: "expected_value",
				Err:   fmt.Errorf("non-finite expected value for %s at %s", m.Station, ts.Format(time.RFC3339)),
			}
		}

		stats.TotalValidations++
		if rec, outlier := domain.Classify(m, res.Expected, group); outlier {
			outliers = append(outliers, roundRecord(rec))
		}
	}

	if checked := stats.TotalValidations + stats.TotalExclusions; checked > 0 {
		stats.ExclusionRate = domain.Round3(float64(stats.TotalExclusions) / float64(checked))
	}

	result := domain.DetectResult{
		Outliers:         outliers,
		TotalRecords:     len(target),
		OutliersDetected: len(outliers),
		Validation:       stats,
	}
	if result.TotalRecords > 0 {
		result.OutlierPercentage = domain.Round3(100 * float64(result.OutliersDetected) / float64(result.TotalRecords))
	}
	return result, nil
}

// SuggestCorrections runs detection over the scope and attempts the
// correction chain for each flagged record. Records with no viable strategy
// are simply absent from the suggestion list.
func (d *Detector) SuggestCorrections(ctx context.Context, req domain.DetectRequest) (domain.SuggestionsResult, error) {
	detection, err := d.Detect(ctx, req)
	if err != nil {
		return domain.SuggestionsResult{}, err
	}

	suggestions := make([]domain.CorrectionSuggestion, 0, len(detection.Outliers))
	if len(detection.Outliers) == 0 {
		return domain.SuggestionsResult{Suggestions: suggestions}, nil
	}

	southern, err := d.store.Fetch(ctx, d.profiles.Southern(), req.Start, req.End)
	if err != nil {
		return domain.SuggestionsResult{}, d.fetchErr(ctx, err)
	}
	groups := domain.GroupByTimestamp(southern)

	flaggedByStation := make(map[string]map[time.Time]bool)
	byStation := make(map[string][]domain.OutlierRecord)
	for _, rec := range detection.Outliers {
		if flaggedByStation[rec.Station] == nil {
			flaggedByStation[rec.Station] = make(map[time.Time]bool)
		}
		flaggedByStation[rec.Station][rec.Timestamp] = true
		byStation[rec.Station] = append(byStation[rec.Station], rec)
	}

	lookbackStart := req.Start.AddDate(0, 0, -d.limits.LookbackDays)
	for _, rec := range detection.Outliers {
		series, ok := seriesFor(ctx, d.store, rec.Station, lookbackStart, req.End)
		if !ok {
			continue
		}
		cctx := domain.CorrectionContext{
			Series:       series,
			Flagged:      flaggedByStation[rec.Station],
			SouthernAt:   groups[rec.Timestamp],
			Interval:     d.limits.SamplingInterval,
			LookbackDays: d.limits.LookbackDays,
		}
		if s, found := domain.SuggestCorrection(rec, d.profiles.Group(rec.Station), cctx); found {
			suggestions = append(suggestions, roundSuggestion(s))
		}
	}

	return domain.SuggestionsResult{
		Suggestions:      suggestions,
		TotalSuggestions: len(suggestions),
	}, nil
}

func seriesFor(ctx context.Context, store Store, station string, start, end time.Time) ([]domain.Measurement, bool) {
	series, err := store.Fetch(ctx, []string{station}, start, end)
	if err != nil {
		return nil, false
	}
	return series, true
}

// normalize validates the request and expands an empty filter to the full
// profiled set.
func (d *Detector) normalize(req domain.DetectRequest) ([]string, error) {
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, &domain.InputError{Reason: "start and end are required"}
	}
	if req.Start.After(req.End) {
		return nil, &domain.InputError{Reason: "start is after end"}
	}
	if len(req.Stations) == 0 {
		return d.profiles.Stations(), nil
	}
	for _, s := range req.Stations {
		if !d.profiles.Known(s) {
			return nil, &domain.InputError{Reason: "unknown station " + s}
		}
	}
	return req.Stations, nil
}

// fetchErr maps a pipeline failure to the error taxonomy: deadline expiry
// becomes a ResourceLimitError with retry context, everything else wraps as a
// ComputationError.
func (d *Detector) fetchErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.ResourceLimitError{
			Limit:   "timeout",
			Allowed: int64(d.limits.Timeout / time.Second),
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.ComputationError{Stage: "measurement_fetch", Err: err}
}

func roundRecord(rec domain.OutlierRecord) domain.OutlierRecord {
	rec.Value = domain.Round3(rec.Value)
	rec.ExpectedValue = domain.Round3(rec.ExpectedValue)
	rec.Deviation = domain.Round3(rec.Deviation)
	rec.Confidence = domain.Round3(rec.Confidence)
	return rec
}

func roundSuggestion(s domain.CorrectionSuggestion) domain.CorrectionSuggestion {
	s.OriginalValue = domain.Round3(s.OriginalValue)
	s.SuggestedValue = domain.Round3(s.SuggestedValue)
	s.Confidence = domain.Round3(s.Confidence)
	for i := range s.SupportingNeighbors {
		s.SupportingNeighbors[i].Value = domain.Round3(s.SupportingNeighbors[i].Value)
	}
	return s
}
