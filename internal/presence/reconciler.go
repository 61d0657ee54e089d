package presence

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
)

type openSession struct {
	id           string
	region       string
	start        time.Time
	displayName  string
	accruedUntil time.Time
}

// Generates the id of a new session
type SessionIDFunc func(uid string, region string, start time.Time) string

type Option func(*Reconciler)

func WithSessionIDs(f SessionIDFunc) Option {
	return func(r *Reconciler) { r.newID = f }
}

// Adopt sessions a previous run left open. Playtime accrues again from
// the later of their start and the last time the profile was seen
func WithResumedSessions(sessions []ResumedSession) Option {
	return func(r *Reconciler) {
		for _, resumed := range sessions {
			accruedUntil := resumed.Start
			if resumed.LastSeen.After(accruedUntil) {
				accruedUntil = resumed.LastSeen
			}
			r.open[resumed.UID] = &openSession{
				id:           resumed.ID,
				region:       resumed.Region,
				start:        resumed.Start,
				displayName:  r.names[resumed.UID],
				accruedUntil: accruedUntil,
			}
		}
	}
}

// The reconciler owns the table of open sessions and the last known
// display name of every profile. Tick never blocks: everything it needs
// is held in memory, and its output is handed to the sink by the caller.
// It is not safe for concurrent use
type Reconciler struct {
	open  map[string]*openSession
	names map[string]string
	newID SessionIDFunc
}

// Create a reconciler with no open sessions. knownNames holds the current
// display name of every profile already in the store
func NewReconciler(knownNames map[string]string, options ...Option) *Reconciler {
	r := &Reconciler{
		open:  map[string]*openSession{},
		names: make(map[string]string, len(knownNames)),
		newID: func(string, string, time.Time) string { return uuid.NewString() },
	}
	for uid, name := range knownNames {
		r.names[uid] = name
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Fold the identities observed at now into the session table.
// Only regions in reported answered this tick: a session in any other
// region is in an unknown state and is left open
func (r *Reconciler) Tick(now time.Time, observed []ResolvedPresence, reported RegionSet) TickResult {

	res := TickResult{At: now}
	credits := map[string]time.Duration{}

	current := make(map[string]ResolvedPresence, len(observed))
	for _, presence := range observed {
		current[presence.UID()] = presence
	}

	// Sessions already open: departures, region changes and renames
	for uid, sess := range r.open {
		presence, present := current[uid]
		switch {
		case !present:
			if !reported.Has(sess.region) {
				continue
			}
			r.close(&res, credits, uid, now)
		case presence.Region != sess.region:
			r.close(&res, credits, uid, now)
		case presence.DisplayName != sess.displayName:
			r.rename(&res, uid, presence.DisplayName, now)
			sess.displayName = presence.DisplayName
		}
	}

	// Arrivals, including the second half of a region change
	for uid, presence := range current {
		if _, ok := r.open[uid]; ok {
			continue
		}
		if _, known := r.names[uid]; known {
			r.rename(&res, uid, presence.DisplayName, now)
		} else {
			r.names[uid] = presence.DisplayName
			res.Events = append(res.Events, Event{Kind: ProfileCreated, UID: uid, At: now, DisplayName: presence.DisplayName})
		}
		r.openSession(&res, uid, presence, now)
	}

	// Playtime of the sessions still open, since the previous tick
	for uid, sess := range r.open {
		credits[uid] += sess.accrue(now)
	}

	for uid, playtime := range credits {
		_, seen := current[uid]
		if playtime == 0 && !seen {
			continue
		}
		res.Credits = append(res.Credits, PlaytimeCredit{UID: uid, DisplayName: r.names[uid], Playtime: playtime, Seen: seen})
	}
	for uid := range current {
		if _, ok := credits[uid]; !ok {
			res.Credits = append(res.Credits, PlaytimeCredit{UID: uid, DisplayName: r.names[uid], Seen: true})
		}
	}

	res.sort()
	return res
}

// Snapshot of the sessions currently open, ordered by uid
func (r *Reconciler) OpenSessions() []Session {
	sessions := make([]Session, 0, len(r.open))
	for uid, sess := range r.open {
		sessions = append(sessions, Session{ID: sess.id, UID: uid, Region: sess.region, Start: sess.start})
	}
	slices.SortFunc(sessions, func(a, b Session) int { return cmp.Compare(a.UID, b.UID) })
	return sessions
}

func (r *Reconciler) openSession(res *TickResult, uid string, presence ResolvedPresence, now time.Time) {
	sess := &openSession{
		id:           r.newID(uid, presence.Region, now),
		region:       presence.Region,
		start:        now,
		displayName:  presence.DisplayName,
		accruedUntil: now,
	}
	r.open[uid] = sess
	res.Events = append(res.Events, Event{
		Kind:    SessionOpened,
		UID:     uid,
		At:      now,
		Session: Session{ID: sess.id, UID: uid, Region: sess.region, Start: now},
	})
}

func (r *Reconciler) close(res *TickResult, credits map[string]time.Duration, uid string, now time.Time) {
	sess := r.open[uid]
	delete(r.open, uid)
	credits[uid] += sess.accrue(now)

	end := now
	duration := end.Sub(sess.start)
	if duration < 0 {
		duration = 0
		end = sess.start
	}
	res.Events = append(res.Events, Event{
		Kind:    SessionClosed,
		UID:     uid,
		At:      now,
		Session: Session{ID: sess.id, UID: uid, Region: sess.region, Start: sess.start, End: &end, Duration: duration},
	})
}

// Record a new display name for a profile, once
func (r *Reconciler) rename(res *TickResult, uid string, name string, now time.Time) {
	old := r.names[uid]
	if old == name {
		return
	}
	r.names[uid] = name
	res.Events = append(res.Events, Event{Kind: NameChanged, UID: uid, At: now, OldName: old, NewName: name})
}

// Playtime since the last accrual, never negative
func (sess *openSession) accrue(now time.Time) time.Duration {
	if !now.After(sess.accruedUntil) {
		return 0
	}
	elapsed := now.Sub(sess.accruedUntil)
	sess.accruedUntil = now
	return elapsed
}
