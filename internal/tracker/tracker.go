// Package tracker runs the presence loop: every interval it polls the
// regions, resolves the identities seen, reconciles them into sessions,
// persists the outcome and publishes a snapshot of who is online.
package tracker

import (
	"context"
	"sync"
	"time"

	"crewbot/internal/metrics"
	"crewbot/internal/presence"
	"crewbot/internal/roster"

	"github.com/rs/zerolog/log"
)

type Poller interface {
	Regions() []string
	Poll(ctx context.Context, region string) ([]roster.OnlineIdentity, bool)
}

type EnrichmentSource interface {
	Get(ctx context.Context) roster.Enrichment
}

type Sink interface {
	Flush(ctx context.Context, res presence.TickResult) error
}

// Receives the state of the crew after every tick
type Publisher interface {
	Publish(ctx context.Context, snapshot Snapshot)
}

type RegionStatus struct {
	Name      string
	Available bool
	Online    []presence.ResolvedPresence
}

type Snapshot struct {
	At      time.Time
	Regions []RegionStatus
}

type Settings struct {
	Interval        time.Duration
	ShutdownTimeout time.Duration
}

type Tracker struct {
	poller     Poller
	enrichment EnrichmentSource
	resolver   *presence.Resolver
	reconciler *presence.Reconciler
	sink       Sink
	publishers []Publisher
	settings   Settings
	clock      func() time.Time
}

func New(poller Poller, enrichment EnrichmentSource, resolver *presence.Resolver, reconciler *presence.Reconciler, sink Sink, settings Settings, publishers ...Publisher) *Tracker {
	return &Tracker{
		poller:     poller,
		enrichment: enrichment,
		resolver:   resolver,
		reconciler: reconciler,
		sink:       sink,
		publishers: publishers,
		settings:   settings,
		clock:      time.Now,
	}
}

// Serve runs a tick right away and then one per interval until the
// context is cancelled. A tick that overruns the interval delays the
// next one, ticks never overlap
func (t *Tracker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.settings.Interval)
	defer ticker.Stop()

	// Flushes outlive ctx. Once it is cancelled, the flush in flight and the
	// drain share a single deadline ShutdownTimeout later
	shutdown, expire := context.WithCancel(context.WithoutCancel(ctx))
	defer expire()
	stopTimer := context.AfterFunc(ctx, func() { time.AfterFunc(t.settings.ShutdownTimeout, expire) })
	defer stopTimer()

	log.Info().Dur("interval", t.settings.Interval).Strs("regions", t.poller.Regions()).Msg("Starting presence tracker")
	t.tick(ctx, shutdown)
	for {
		select {
		case <-ctx.Done():
			t.drain(shutdown)
			log.Info().Msg("Presence tracker stopped")
			return ctx.Err()
		case <-ticker.C:
			t.tick(ctx, shutdown)
		}
	}
}

func (t *Tracker) String() string {
	return "presence-tracker"
}

// Tick executes one poll, reconcile, flush and publish cycle
func (t *Tracker) Tick(ctx context.Context) {
	t.tick(ctx, context.WithoutCancel(ctx))
}

// shutdown bounds the flush once ctx is cancelled
func (t *Tracker) tick(ctx context.Context, shutdown context.Context) {
	start := time.Now()
	now := t.clock().UTC()

	statuses := t.pollRegions(ctx)
	enrichment := t.enrichment.Get(ctx)

	reported := presence.RegionSet{}
	var identities []roster.OnlineIdentity
	for _, status := range statuses {
		if !status.Available {
			continue
		}
		reported[status.Name] = struct{}{}
		for _, online := range status.Online {
			identities = append(identities, online.OnlineIdentity)
		}
	}
	resolved := t.resolver.ResolveAll(identities, enrichment)

	res := t.reconciler.Tick(now, resolved, reported)
	for _, event := range res.Events {
		metrics.PresenceEvents.WithLabelValues(event.Kind.String()).Inc()
		logEvent(event)
	}
	metrics.OpenSessions.Set(float64(len(t.reconciler.OpenSessions())))

	flushCtx, cancel := context.WithTimeout(shutdown, t.settings.ShutdownTimeout)
	if err := t.sink.Flush(flushCtx, res); err != nil {
		log.Error().Err(err).Msg("Could not persist tick, will retry on the next one")
	}
	cancel()

	// Rebuild the per region view from the resolved identities so the
	// snapshot carries the tier information
	byRegion := map[string][]presence.ResolvedPresence{}
	for _, online := range resolved {
		byRegion[online.Region] = append(byRegion[online.Region], online)
	}
	for i := range statuses {
		statuses[i].Online = byRegion[statuses[i].Name]
	}
	snapshot := Snapshot{At: now, Regions: statuses}
	for _, publisher := range t.publishers {
		publisher.Publish(ctx, snapshot)
	}

	metrics.Ticks.Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	log.Debug().Int("online", len(resolved)).Int("regions", len(reported)).Int("events", len(res.Events)).
		Dur("took", time.Since(start)).Msg("Tick done")
}

// Poll every region concurrently. The result keeps the configured order
func (t *Tracker) pollRegions(ctx context.Context) []RegionStatus {
	regions := t.poller.Regions()

	type pollResult struct {
		index      int
		identities []roster.OnlineIdentity
		ok         bool
	}
	results := make(chan pollResult, len(regions))
	var wg sync.WaitGroup
	for i, region := range regions {
		wg.Add(1)
		go func(ch chan<- pollResult) {
			defer wg.Done()
			identities, ok := t.poller.Poll(ctx, region)
			ch <- pollResult{index: i, identities: identities, ok: ok}
		}(results)
	}
	wg.Wait()
	close(results)

	statuses := make([]RegionStatus, len(regions))
	for result := range results {
		region := regions[result.index]
		statuses[result.index] = RegionStatus{Name: region, Available: result.ok}
		if result.ok {
			for _, identity := range result.identities {
				statuses[result.index].Online = append(statuses[result.index].Online, presence.ResolvedPresence{OnlineIdentity: identity})
			}
			metrics.RegionAvailable.WithLabelValues(region).Set(1)
		} else {
			metrics.RegionAvailable.WithLabelValues(region).Set(0)
		}
	}
	return statuses
}

// Retry whatever is still in the sink backlog before stopping
func (t *Tracker) drain(shutdown context.Context) {
	if err := t.sink.Flush(shutdown, presence.TickResult{At: t.clock().UTC()}); err != nil {
		log.Error().Err(err).Msg("Stopping with events that could not be persisted")
	}
}

func logEvent(event presence.Event) {
	entry := log.Info().Str("uid", event.UID).Str("kind", event.Kind.String())
	switch event.Kind {
	case presence.ProfileCreated:
		entry.Str("name", event.DisplayName).Msg("New profile")
	case presence.NameChanged:
		entry.Str("old", event.OldName).Str("new", event.NewName).Msg("Name changed")
	case presence.SessionOpened:
		entry.Str("session", event.Session.ID).Str("region", event.Session.Region).Msg("Session opened")
	case presence.SessionClosed:
		entry.Str("session", event.Session.ID).Str("region", event.Session.Region).
			Dur("duration", event.Session.Duration).Msg("Session closed")
	}
}
