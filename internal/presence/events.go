package presence

import (
	"cmp"
	"slices"
	"time"
)

// Event kinds, in the order they are listed for a single uid
type EventKind int

const (
	ProfileCreated EventKind = iota
	NameChanged
	SessionClosed
	SessionOpened
)

var eventKindNames = map[EventKind]string{
	ProfileCreated: "profile_created",
	NameChanged:    "name_changed",
	SessionClosed:  "session_closed",
	SessionOpened:  "session_opened",
}

func (kind EventKind) String() string {
	return eventKindNames[kind]
}

// A transition observed during a tick
type Event struct {
	Kind EventKind
	UID  string
	At   time.Time
	// SessionOpened and SessionClosed
	Session Session
	// ProfileCreated
	DisplayName string
	// NameChanged
	OldName string
	NewName string
}

// Playtime to add to a profile, accrued since the previous tick
type PlaytimeCredit struct {
	UID string
	// Last known display name, used to recreate a profile missing from the store
	DisplayName string
	Playtime    time.Duration
	// The identity was observed in this tick, so last seen moves to the tick time
	Seen bool
}

// Everything a tick produced, handed to the sink as one unit
type TickResult struct {
	At      time.Time
	Events  []Event
	Credits []PlaytimeCredit
}

func (res TickResult) Empty() bool {
	return len(res.Events) == 0 && len(res.Credits) == 0
}

// Number of rows the result will touch in the store
func (res TickResult) Size() int {
	return len(res.Events) + len(res.Credits)
}

func (res *TickResult) sort() {
	slices.SortStableFunc(res.Events, func(a, b Event) int {
		return cmp.Or(cmp.Compare(a.UID, b.UID), cmp.Compare(a.Kind, b.Kind))
	})
	slices.SortFunc(res.Credits, func(a, b PlaytimeCredit) int {
		return cmp.Compare(a.UID, b.UID)
	})
}
