package server

import (
	"context"
	"sync"
	"time"

	"crewbot/internal/tracker"
)

// What /healthz reports
type Status struct {
	Healthy       bool            `json:"healthy"`
	LastTick      *time.Time      `json:"last_tick,omitempty"`
	Regions       map[string]bool `json:"regions"`
	Online        int             `json:"online"`
	PendingEvents int             `json:"pending_events"`
	// Zero time means the enrichment mapping was never fetched
	EnrichmentRefreshedAt *time.Time `json:"enrichment_refreshed_at,omitempty"`
	EnrichmentAgeSeconds  float64    `json:"enrichment_age_seconds,omitempty"`
}

// Monitor follows the tracker through its snapshots. The loop is healthy
// while ticks keep arriving
type Monitor struct {
	staleAfter time.Duration
	pending    func() int
	refreshed  func() time.Time
	clock      func() time.Time

	mu       sync.Mutex
	snapshot *tracker.Snapshot
}

// pending may be nil
func NewMonitor(staleAfter time.Duration, pending func() int) *Monitor {
	return &Monitor{staleAfter: staleAfter, pending: pending, clock: time.Now}
}

// Report how old the enrichment mapping is, as given by refreshedAt
func (m *Monitor) TrackEnrichment(refreshedAt func() time.Time) {
	m.refreshed = refreshedAt
}

func (m *Monitor) Publish(_ context.Context, snapshot tracker.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = &snapshot
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	snapshot := m.snapshot
	m.mu.Unlock()

	status := Status{Regions: map[string]bool{}}
	if m.pending != nil {
		status.PendingEvents = m.pending()
	}
	if m.refreshed != nil {
		if refreshedAt := m.refreshed(); !refreshedAt.IsZero() {
			status.EnrichmentRefreshedAt = &refreshedAt
			status.EnrichmentAgeSeconds = m.clock().Sub(refreshedAt).Seconds()
		}
	}
	if snapshot == nil {
		return status
	}

	at := snapshot.At
	status.LastTick = &at
	status.Healthy = m.clock().Sub(at) <= m.staleAfter
	for _, region := range snapshot.Regions {
		status.Regions[region.Name] = region.Available
		status.Online += len(region.Online)
	}
	return status
}
