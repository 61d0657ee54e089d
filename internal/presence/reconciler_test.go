package presence

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"crewbot/internal/roster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

func seen(uid, name, region string) ResolvedPresence {
	return ResolvedPresence{OnlineIdentity: roster.OnlineIdentity{RawID: uid, DisplayName: name, Region: region}}
}

func deterministicIDs(uid string, region string, start time.Time) string {
	return fmt.Sprintf("%s-%s-%d", uid, region, start.Unix())
}

func newTestReconciler(known map[string]string) *Reconciler {
	return NewReconciler(known, WithSessionIDs(deterministicIDs))
}

var allRegions = NewRegionSet("EU", "NA")

func kinds(events []Event) []EventKind {
	out := []EventKind{}
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func totalPlaytime(results ...TickResult) map[string]time.Duration {
	totals := map[string]time.Duration{}
	for _, res := range results {
		for _, c := range res.Credits {
			totals[c.UID] += c.Playtime
		}
	}
	return totals
}

func TestScenarioA_FirstArrival(t *testing.T) {
	r := newTestReconciler(nil)

	res := r.Tick(at(0), []ResolvedPresence{seen("42", "Alice", "EU")}, allRegions)

	require.Equal(t, []EventKind{ProfileCreated, SessionOpened}, kinds(res.Events))
	assert.Equal(t, "Alice", res.Events[0].DisplayName)
	assert.Equal(t, Session{ID: "42-EU-" + fmt.Sprint(at(0).Unix()), UID: "42", Region: "EU", Start: at(0)}, res.Events[1].Session)
	assert.Equal(t, []PlaytimeCredit{{UID: "42", DisplayName: "Alice", Playtime: 0, Seen: true}}, res.Credits)

	open := r.OpenSessions()
	require.Len(t, open, 1)
	assert.Equal(t, "EU", open[0].Region)
	assert.Equal(t, at(0), open[0].Start)
}

func TestScenarioB_Departure(t *testing.T) {
	r := newTestReconciler(nil)
	alice := []ResolvedPresence{seen("42", "Alice", "EU")}

	r0 := r.Tick(at(0), alice, allRegions)
	r60 := r.Tick(at(60), alice, allRegions)
	assert.Empty(t, r60.Events)
	assert.Equal(t, []PlaytimeCredit{{UID: "42", DisplayName: "Alice", Playtime: 60 * time.Second, Seen: true}}, r60.Credits)

	r120 := r.Tick(at(120), nil, allRegions)
	require.Equal(t, []EventKind{SessionClosed}, kinds(r120.Events))
	closed := r120.Events[0].Session
	assert.Equal(t, "EU", closed.Region)
	assert.Equal(t, at(0), closed.Start)
	require.NotNil(t, closed.End)
	assert.Equal(t, at(120), *closed.End)
	assert.Equal(t, 120*time.Second, closed.Duration)
	assert.Equal(t, []PlaytimeCredit{{UID: "42", DisplayName: "Alice", Playtime: 60 * time.Second, Seen: false}}, r120.Credits)

	assert.Equal(t, 120*time.Second, totalPlaytime(r0, r60, r120)["42"])
	assert.Empty(t, r.OpenSessions())
}

func TestScenarioC_RegionChange(t *testing.T) {
	r := newTestReconciler(nil)

	r0 := r.Tick(at(0), []ResolvedPresence{seen("42", "Alice", "EU")}, allRegions)
	r60 := r.Tick(at(60), []ResolvedPresence{seen("42", "Alice", "NA")}, allRegions)

	require.Equal(t, []EventKind{SessionClosed, SessionOpened}, kinds(r60.Events))
	assert.Equal(t, "EU", r60.Events[0].Session.Region)
	assert.Equal(t, 60*time.Second, r60.Events[0].Session.Duration)
	assert.Equal(t, "NA", r60.Events[1].Session.Region)
	assert.Equal(t, at(60), r60.Events[1].Session.Start)

	assert.Equal(t, 60*time.Second, totalPlaytime(r0, r60)["42"], "no double credit on the transition tick")

	open := r.OpenSessions()
	require.Len(t, open, 1)
	assert.Equal(t, "NA", open[0].Region)

	r120 := r.Tick(at(120), []ResolvedPresence{seen("42", "Alice", "NA")}, allRegions)
	assert.Empty(t, r120.Events)
	assert.Equal(t, 120*time.Second, totalPlaytime(r0, r60, r120)["42"])
}

func TestScenarioD_NameChangeOnce(t *testing.T) {
	r := newTestReconciler(map[string]string{"42": "Alice"})

	res := r.Tick(at(0), []ResolvedPresence{seen("42", "Alicia", "EU")}, allRegions)
	require.Equal(t, []EventKind{NameChanged, SessionOpened}, kinds(res.Events))
	assert.Equal(t, "Alice", res.Events[0].OldName)
	assert.Equal(t, "Alicia", res.Events[0].NewName)

	for i := 1; i <= 3; i++ {
		res = r.Tick(at(60*i), []ResolvedPresence{seen("42", "Alicia", "EU")}, allRegions)
		assert.Empty(t, res.Events)
	}
	assert.Equal(t, "Alicia", r.names["42"])
}

func TestNameChangeWithinOpenSession(t *testing.T) {
	r := newTestReconciler(nil)
	r.Tick(at(0), []ResolvedPresence{seen("42", "Alice", "EU")}, allRegions)

	res := r.Tick(at(60), []ResolvedPresence{seen("42", "Alicia", "EU")}, allRegions)
	require.Equal(t, []EventKind{NameChanged}, kinds(res.Events), "a rename does not end the session")
	assert.Equal(t, "Alice", res.Events[0].OldName)

	res = r.Tick(at(120), []ResolvedPresence{seen("42", "Alicia", "EU")}, allRegions)
	assert.Empty(t, res.Events)

	open := r.OpenSessions()
	require.Len(t, open, 1)
	assert.Equal(t, at(0), open[0].Start)
}

func TestReturningProfileWithSameName(t *testing.T) {
	r := newTestReconciler(map[string]string{"42": "Alice"})
	res := r.Tick(at(0), []ResolvedPresence{seen("42", "Alice", "EU")}, allRegions)
	assert.Equal(t, []EventKind{SessionOpened}, kinds(res.Events))
}

func TestUnknownRegionKeepsSessionsOpen(t *testing.T) {
	r := newTestReconciler(nil)
	r.Tick(at(0), []ResolvedPresence{seen("42", "Alice", "EU"), seen("7", "Bob", "NA")}, allRegions)

	// EU fails to answer, NA answers with nobody
	res := r.Tick(at(60), nil, NewRegionSet("NA"))
	require.Len(t, res.Events, 1)
	assert.Equal(t, SessionClosed, res.Events[0].Kind)
	assert.Equal(t, "7", res.Events[0].UID)

	open := r.OpenSessions()
	require.Len(t, open, 1)
	assert.Equal(t, "42", open[0].UID)

	// EU answers again and reports the absence
	res = r.Tick(at(120), nil, allRegions)
	require.Equal(t, []EventKind{SessionClosed}, kinds(res.Events))
	assert.Equal(t, "42", res.Events[0].UID)
	assert.Equal(t, 120*time.Second, res.Events[0].Session.Duration)
	assert.Empty(t, r.OpenSessions())
}

func TestIdempotentReplay(t *testing.T) {
	r := newTestReconciler(map[string]string{"1": "Old"})
	observed := []ResolvedPresence{seen("1", "New", "EU"), seen("2", "Bob", "NA"), seen("3", "Carol", "EU")}

	first := r.Tick(at(0), observed, allRegions)
	assert.NotEmpty(t, first.Events)

	second := r.Tick(at(0), observed, allRegions)
	assert.Empty(t, second.Events)
	for _, c := range second.Credits {
		assert.Zero(t, c.Playtime)
	}

	third := r.Tick(at(60), observed, allRegions)
	assert.Empty(t, third.Events)
}

func TestOrderIndependence(t *testing.T) {
	known := map[string]string{"1": "One", "2": "Two", "3": "Three", "4": "Four"}
	before := []ResolvedPresence{
		seen("1", "One", "EU"),
		seen("2", "Two", "EU"),
		seen("3", "Three", "NA"),
		seen("4", "Four", "NA"),
	}
	after := []ResolvedPresence{
		seen("1", "One", "NA"),   // region change
		seen("3", "Trois", "NA"), // rename
		seen("4", "Four", "NA"),  // unchanged
		seen("5", "Five", "EU"),  // arrival
		seen("6", "Six", "NA"),   // arrival
		seen("7", "Seven", "EU"), // arrival
		// 2 departs
	}

	run := func(observed []ResolvedPresence) (TickResult, []Session) {
		r := newTestReconciler(known)
		r.Tick(at(0), before, allRegions)
		res := r.Tick(at(60), observed, allRegions)
		return res, r.OpenSessions()
	}

	wantRes, wantOpen := run(after)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]ResolvedPresence(nil), after...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		res, open := run(shuffled)
		assert.Equal(t, wantRes, res)
		assert.Equal(t, wantOpen, open)
	}
}

func TestAtMostOneOpenSessionPerUID(t *testing.T) {
	r := newTestReconciler(nil)
	rng := rand.New(rand.NewSource(7))
	regions := []string{"EU", "NA"}
	names := []string{"A", "B"}

	for tick := 0; tick < 200; tick++ {
		var observed []ResolvedPresence
		for uid := 0; uid < 10; uid++ {
			if rng.Intn(3) == 0 {
				continue
			}
			observed = append(observed, seen(fmt.Sprint(uid), names[rng.Intn(2)], regions[rng.Intn(2)]))
		}
		res := r.Tick(at(tick*60), observed, allRegions)

		perUID := map[string]int{}
		for _, sess := range r.OpenSessions() {
			perUID[sess.UID]++
		}
		for uid, n := range perUID {
			require.Equal(t, 1, n, "uid %s", uid)
		}
		require.Len(t, r.OpenSessions(), len(observed))

		for _, e := range res.Events {
			if e.Kind == SessionClosed {
				require.Equal(t, e.Session.End.Sub(e.Session.Start), e.Session.Duration)
				require.GreaterOrEqual(t, e.Session.Duration, time.Duration(0))
			}
		}
	}
}

func TestClockSkewClampsToZero(t *testing.T) {
	r := newTestReconciler(nil)
	r.Tick(at(60), []ResolvedPresence{seen("42", "Alice", "EU")}, allRegions)

	res := r.Tick(at(0), nil, allRegions)
	require.Len(t, res.Events, 1)
	closed := res.Events[0].Session
	assert.Zero(t, closed.Duration)
	assert.Equal(t, closed.Start, *closed.End)
	assert.Empty(t, res.Credits)
}

func TestResumedSessionContinues(t *testing.T) {
	resumed := []ResumedSession{{
		Session:  Session{ID: "s-1", UID: "42", Region: "EU", Start: at(0)},
		LastSeen: at(300),
	}}
	r := NewReconciler(map[string]string{"42": "Alice"}, WithSessionIDs(deterministicIDs), WithResumedSessions(resumed))

	res := r.Tick(at(360), []ResolvedPresence{seen("42", "Alice", "EU")}, allRegions)
	assert.Empty(t, res.Events)
	assert.Equal(t, []PlaytimeCredit{{UID: "42", DisplayName: "Alice", Playtime: 60 * time.Second, Seen: true}}, res.Credits)

	res = r.Tick(at(420), nil, allRegions)
	require.Equal(t, []EventKind{SessionClosed}, kinds(res.Events))
	assert.Equal(t, "s-1", res.Events[0].Session.ID)
	assert.Equal(t, 420*time.Second, res.Events[0].Session.Duration)
}
