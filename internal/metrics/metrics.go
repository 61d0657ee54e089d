// Package metrics holds the Prometheus instruments of the presence loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewbot_poll_failures_total",
			Help: "Region or enrichment fetches folded into an unknown result",
		},
		[]string{"endpoint", "reason"},
	)

	OnlineIdentities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crewbot_online_identities",
			Help: "Identities reported online by the last successful poll of each region",
		},
		[]string{"region"},
	)

	RegionAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crewbot_region_available",
			Help: "1 if the region answered on the last tick, 0 otherwise",
		},
		[]string{"region"},
	)

	Ticks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewbot_ticks_total",
			Help: "Reconciliation ticks executed",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crewbot_tick_duration_seconds",
			Help:    "Wall time of a poll, reconcile and flush cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	PresenceEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewbot_presence_events_total",
			Help: "Transition events emitted by the reconciler",
		},
		[]string{"kind"},
	)

	OpenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crewbot_open_sessions",
			Help: "Sessions currently open in memory",
		},
	)

	SinkBacklogEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crewbot_sink_backlog_events",
			Help: "Events waiting to be committed to the store",
		},
	)

	SinkFlushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewbot_sink_flush_failures_total",
			Help: "Flush attempts that failed and left batches in the backlog",
		},
	)

	SinkDroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewbot_sink_dropped_events_total",
			Help: "Events dropped because the backlog exceeded its bound",
		},
	)

	SinkRecreatedProfiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewbot_sink_recreated_profiles_total",
			Help: "Profiles missing from the store that a playtime credit recreated",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crewbot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
