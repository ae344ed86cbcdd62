// Package domain implements the Southern Baseline Rules for cross-station
// sea-level anomaly detection and correction.
//
// # Reference baseline
//
// A fixed group of southern Mediterranean stations serves as the reference
// set. For every timestamp where at least two southern stations report a
// reading, the baseline is the arithmetic mean of those readings. Timestamps
// below that quorum produce no baseline; measurements that needed one are
// counted as exclusions rather than silently validated.
//
// # Expected values
//
// A station's expected value is the baseline plus a fixed per-station offset
// (configuration, not derived):
//
//	southern stations  +0.00 m  (validated against a leave-one-out baseline)
//	mid-latitude       +0.04 m
//	northern           +0.08 m
//
// Southern stations are validated against a baseline recomputed without their
// own reading, so a misbehaving reference station cannot vouch for itself.
//
// # Basin stations
//
// Stations in a geographically disconnected basin are excluded from baseline
// validation entirely. The Mediterranean reference mean says nothing about
// their water level, so they are never resolved against it, never flagged,
// and never counted as validations or exclusions. Their measurements still
// count toward the total record count of a query.
//
// # Classification
//
// A record is an outlier when |value − expected| exceeds the group threshold:
// 0.03 m for southern stations (stricter, they define the reference), 0.05 m
// for northern and mid-latitude stations. Confidence ramps linearly and
// saturates at three times the threshold; deviations at or beyond that point
// are reported as extreme_deviation.
//
// # Corrections
//
// For each flagged record a prioritized strategy chain proposes a replacement
// value: linear interpolation between neighboring clean readings, the station
// baseline (expected value), then a same-hour historical average. If no
// strategy produces a candidate the outlier is reported unresolved; a value
// is never fabricated.
package domain
