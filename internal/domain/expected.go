package domain

// ResolveOutcome classifies the result of an expected-value resolution.
type ResolveOutcome int

const (
	// Resolved: a baseline existed and an expected value was produced.
	Resolved ResolveOutcome = iota
	// NoBaseline: the required baseline did not meet quorum; the record is
	// excluded and counted in total_exclusions.
	NoBaseline
	// NotValidated: the station does not participate in baseline validation
	// (basin group or unprofiled); neither a validation nor an exclusion.
	NotValidated
)

// Resolution is the outcome of resolving one (station, timestamp) pair.
type Resolution struct {
	Outcome  ResolveOutcome
	Expected float64
	// BaselineComputed reports whether resolving this record required a fresh
	// baseline computation (leave-one-out baselines are per record; full
	// baselines are computed once per timestamp by the caller).
	BaselineComputed bool
}

// ExpectedResolver maps (station, timestamp) to an expected value using the
// southern reference baseline and the station's fixed offset.
type ExpectedResolver struct {
	profiles StationSet
}

// NewExpectedResolver creates a resolver over a validated profile set.
func NewExpectedResolver(profiles StationSet) *ExpectedResolver {
	return &ExpectedResolver{profiles: profiles}
}

// Resolve produces the expected value for a measurement given the southern
// readings at its timestamp and the memoized full baseline for that
// timestamp (ok=false when below quorum).
//
// Southern stations resolve against a leave-one-out baseline; northern and
// mid-latitude stations against the full baseline plus offset; basin and
// unknown stations are not validated at all.
func (r *ExpectedResolver) Resolve(m Measurement, southernAt []Measurement, full Baseline, fullOK bool) Resolution {
	profile, known := r.profiles[m.Station]
	if !known || profile.Group == GroupBasin {
		return Resolution{Outcome: NotValidated}
	}

	if profile.Group == GroupSouthern {
		loo, ok := LeaveOneOutBaseline(m.Timestamp, southernAt, m.Station)
		if !ok {
			return Resolution{Outcome: NoBaseline, BaselineComputed: false}
		}
		return Resolution{
			Outcome:          Resolved,
			Expected:         loo.Value + profile.Offset,
			BaselineComputed: true,
		}
	}

	if !fullOK {
		return Resolution{Outcome: NoBaseline}
	}
	return Resolution{Outcome: Resolved, Expected: full.Value + profile.Offset}
}
