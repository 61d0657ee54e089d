package roster

import (
	"context"
	"sync"
	"time"

	"crewbot/internal/common"

	"github.com/rs/zerolog/log"
)

type Enricher interface {
	PollEnrichment(ctx context.Context) (Enrichment, bool)
}

// The enrichment cache refreshes the mapping on a long cadence.
// When a refresh fails the previous mapping is kept and the refresh
// is attempted again on the next call
type EnrichmentCache struct {
	mu          sync.RWMutex
	enricher    Enricher
	executor    *common.TimedExecutor
	current     Enrichment
	refreshedAt time.Time
	clock       func() time.Time
	refreshCtx  context.Context
}

func NewEnrichmentCache(enricher Enricher, refresh time.Duration) *EnrichmentCache {
	return NewEnrichmentCacheWithClock(enricher, refresh, time.Now)
}

func NewEnrichmentCacheWithClock(enricher Enricher, refresh time.Duration, clock func() time.Time) *EnrichmentCache {
	cache := &EnrichmentCache{enricher: enricher, current: Enrichment{}, clock: clock}
	cache.executor = common.NewTimedExecutorWithClock(refresh, cache.refresh, clock)
	return cache
}

// Return the cached mapping, refreshing it first if the cadence says so
func (cache *EnrichmentCache) Get(ctx context.Context) Enrichment {
	cache.mu.Lock()
	cache.refreshCtx = ctx
	cache.executor.Execute()
	cache.refreshCtx = nil
	current := cache.current
	cache.mu.Unlock()
	return current
}

// Time of the last successful refresh, zero if never refreshed
func (cache *EnrichmentCache) RefreshedAt() time.Time {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return cache.refreshedAt
}

// Called by the executor with the lock held
func (cache *EnrichmentCache) refresh() {
	enrichment, ok := cache.enricher.PollEnrichment(cache.refreshCtx)
	if !ok {
		cache.executor.Expire()
		if cache.refreshedAt.IsZero() {
			log.Warn().Msg("Enrichment unavailable, every identity stays unclassified")
		} else {
			log.Warn().Time("refreshed_at", cache.refreshedAt).Msg("Enrichment refresh failed, reusing stale mapping")
		}
		return
	}
	cache.current = enrichment
	cache.refreshedAt = cache.clock()
	log.Info().Int("entries", len(enrichment)).Msg("Enrichment refreshed")
}
