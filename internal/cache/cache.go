// Package cache holds precomputed detection results keyed by query scope.
// Entries are immutable once written; refresh replaces an entry atomically so
// readers never observe a partially updated result.
package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/marigraph/sealevel-rules/internal/domain"
)

// Scope identifies one cacheable detection query: the station filter, the
// time range, and the ruleset version the result was computed under. Bumping
// the ruleset version changes every key, so stale-rule entries are simply
// never hit again.
type Scope struct {
	Stations       []string  `json:"stations"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	RulesetVersion string    `json:"ruleset_version"`
}

// NewScope builds a canonical scope from a request: stations sorted,
// timestamps in UTC, current ruleset version.
func NewScope(req domain.DetectRequest) Scope {
	stations := make([]string, len(req.Stations))
	copy(stations, req.Stations)
	sort.Strings(stations)
	return Scope{
		Stations:       stations,
		Start:          req.Start.UTC(),
		End:            req.End.UTC(),
		RulesetVersion: domain.RulesetVersion,
	}
}

// Key is the full cache key. Equal requests always produce equal keys.
func (s Scope) Key() string {
	return s.RulesetVersion + "|" + s.FilterKey() + "|" +
		s.Start.Format(time.RFC3339) + "|" + s.End.Format(time.RFC3339)
}

// FilterKey identifies the station filter alone. Refresh conflicts are scoped
// to the filter: two refreshes for the same stations collide even when their
// time ranges differ.
func (s Scope) FilterKey() string {
	if len(s.Stations) == 0 {
		return "all"
	}
	return strings.Join(s.Stations, ",")
}

// Request reconstructs the detection request this scope was built from.
func (s Scope) Request() domain.DetectRequest {
	return domain.DetectRequest{Stations: s.Stations, Start: s.Start, End: s.End}
}

// Entry is one cached detection result. ComputedAt comes from the refresh
// clock, not from serving time.
type Entry struct {
	Scope      Scope               `json:"scope"`
	ComputedAt time.Time           `json:"computed_at"`
	Result     domain.DetectResult `json:"result"`
}

// Store is the cache backend. Swap must replace the keyed entry atomically
// with respect to Get.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Swap(ctx context.Context, entry Entry) error
	Size(ctx context.Context) (int, error)
}
