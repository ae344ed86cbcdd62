package domain

import "fmt"

// InputError reports an invalid request: a bad date range or a station the
// profile set does not know.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return "invalid input: " + e.Reason }

// ResourceLimitError reports an aborted request that exceeded the hard query
// limits. It carries requested-versus-allowed context so the caller can retry
// with a narrower range. Partial work is always discarded.
type ResourceLimitError struct {
	Limit     string // "rows" or "timeout"
	Requested int64
	Allowed   int64
}

func (e *ResourceLimitError) Error() string {
	if e.Limit == "timeout" {
		return fmt.Sprintf("query exceeded time limit (%ds allowed)", e.Allowed)
	}
	return fmt.Sprintf("query exceeded %s limit: %d requested, %d allowed", e.Limit, e.Requested, e.Allowed)
}

// RefreshConflictError reports that a cache refresh for the same station
// filter is already in flight. Callers are expected to retry later; refreshes
// are never queued.
type RefreshConflictError struct {
	StationFilter string
}

func (e *RefreshConflictError) Error() string {
	return "cache refresh already in flight for scope " + e.StationFilter
}

// ComputationError wraps an unexpected numeric fault inside the detection
// pipeline. The quorum invariants should make these unreachable; the guard
// exists so an internal fault never surfaces as a deceptively clean empty
// result.
type ComputationError struct {
	Stage string
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation failed at %s: %v", e.Stage, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }
