package domain

import (
	"fmt"
	"sort"
)

// RulesetVersion identifies the active rule constants. It participates in
// every cache key so a ruleset change can never serve stale classifications.
const RulesetVersion = "sbr-1"

// StationGroup partitions stations by how they participate in validation.
type StationGroup string

const (
	// GroupSouthern stations form the reference set and use the stricter
	// threshold with leave-one-out validation.
	GroupSouthern StationGroup = "southern"
	// GroupNorthern covers the northern and mid-latitude stations validated
	// against the full baseline plus their fixed offset.
	GroupNorthern StationGroup = "northern"
	// GroupBasin stations sit in a disconnected basin and are excluded from
	// baseline validation.
	GroupBasin StationGroup = "basin"
)

// StationProfile is the fixed configuration of one tide gauge.
type StationProfile struct {
	Station string       `yaml:"station" json:"station"`
	Group   StationGroup `yaml:"group" json:"group"`
	Offset  float64      `yaml:"offset" json:"offset"` // meters added to the baseline
}

// StationSet indexes station profiles by station name.
type StationSet map[string]StationProfile

// DefaultProfiles returns the station configuration of the standard
// deployment: three southern reference gauges, the Antalya mid-latitude
// gauge, the Trieste northern gauge, and the disconnected Baku basin gauge.
func DefaultProfiles() StationSet {
	return NewStationSet(
		StationProfile{Station: "alexandria", Group: GroupSouthern, Offset: 0.00},
		StationProfile{Station: "valletta", Group: GroupSouthern, Offset: 0.00},
		StationProfile{Station: "limassol", Group: GroupSouthern, Offset: 0.00},
		StationProfile{Station: "antalya", Group: GroupNorthern, Offset: 0.04},
		StationProfile{Station: "trieste", Group: GroupNorthern, Offset: 0.08},
		StationProfile{Station: "baku", Group: GroupBasin, Offset: 0.28},
	)
}

// NewStationSet builds a StationSet from individual profiles.
func NewStationSet(profiles ...StationProfile) StationSet {
	set := make(StationSet, len(profiles))
	for _, p := range profiles {
		set[p.Station] = p
	}
	return set
}

// Validate checks the profile set is usable: every group is known and the
// southern reference group can meet the baseline quorum.
func (s StationSet) Validate() error {
	for name, p := range s {
		if name == "" || p.Station != name {
			return fmt.Errorf("station profile key %q does not match station %q", name, p.Station)
		}
		switch p.Group {
		case GroupSouthern, GroupNorthern, GroupBasin:
		default:
			return fmt.Errorf("station %s: unknown group %q", name, p.Group)
		}
	}
	if len(s.Southern()) < BaselineQuorum {
		return fmt.Errorf("southern reference group needs at least %d stations", BaselineQuorum)
	}
	return nil
}

// Known reports whether the station has a profile.
func (s StationSet) Known(station string) bool {
	_, ok := s[station]
	return ok
}

// Group returns the station's group. Unknown stations report an empty group.
func (s StationSet) Group(station string) StationGroup {
	return s[station].Group
}

// Offset returns the station's fixed baseline offset in meters.
func (s StationSet) Offset(station string) float64 {
	return s[station].Offset
}

// Southern returns the sorted names of the reference group.
func (s StationSet) Southern() []string {
	var names []string
	for name, p := range s {
		if p.Group == GroupSouthern {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Stations returns all profiled station names, sorted.
func (s StationSet) Stations() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
