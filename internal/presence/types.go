// Package presence turns polled rosters into sessions.
//
// The Resolver attaches tier information to the identities seen online,
// and the Reconciler keeps the table of open sessions, computing on every
// tick the arrivals, departures, region moves and name changes together
// with the playtime accrued since the previous tick.
package presence

import (
	"time"

	"crewbot/internal/roster"
)

type Classification int

const (
	Unclassified Classification = iota
	Candidate
	Member
)

func (c Classification) String() string {
	switch c {
	case Member:
		return "member"
	case Candidate:
		return "candidate"
	default:
		return "unclassified"
	}
}

type ResolvedPresence struct {
	roster.OnlineIdentity
	Classification Classification
	// nil when the identity is not in the enrichment
	SortRank *int
}

func (p ResolvedPresence) UID() string {
	return p.RawID
}

// A contiguous period an identity was observed online in one region
type Session struct {
	ID       string
	UID      string
	Region   string
	Start    time.Time
	End      *time.Time
	Duration time.Duration
}

func (s Session) Open() bool {
	return s.End == nil
}

// An open session found in the store at startup
type ResumedSession struct {
	Session
	LastSeen time.Time
}

type PlayerProfile struct {
	UID           string
	DisplayName   string
	LastSeen      time.Time
	TotalPlaytime time.Duration
}

type NameChangeRecord struct {
	UID       string
	OldName   string
	NewName   string
	ChangedAt time.Time
}

// Set of regions that answered during a tick
type RegionSet map[string]struct{}

func NewRegionSet(regions ...string) RegionSet {
	set := make(RegionSet, len(regions))
	for _, region := range regions {
		set[region] = struct{}{}
	}
	return set
}

func (set RegionSet) Has(region string) bool {
	_, ok := set[region]
	return ok
}
