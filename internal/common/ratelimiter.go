package common

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// The rate limiter decides if a request can be sent right now.
// Vital requests wait until every restriction allows them (or the context ends),
// non vital requests are rejected straight away if they would have to wait.
// After the upstream answers with a rate limit, every request is held back
// for the backoff duration
type RateLimiter struct {
	mu       sync.Mutex
	limiters []*rate.Limiter
	backoff  Stopwatch
}

func NewRateLimiter(restrictions []Restriction, backoff time.Duration) *RateLimiter {
	rl := &RateLimiter{backoff: NewStopwatch(backoff)}
	for _, restriction := range restrictions {
		rl.limiters = append(rl.limiters, restriction.Limiter())
	}
	return rl
}

// Decide if request is allowed.
// If the request is not allowed but vital, execution
// will block here until it is allowed or the context is done
func (rl *RateLimiter) Allowed(ctx context.Context, vital bool) bool {

	// Honour a previous rate limit answer first
	if wait := rl.backoffRemaining(); wait > 0 {
		if !vital {
			log.Warn().Dur("wait", wait).Msg("Rejecting a non vital request while backing off")
			return false
		}
		log.Warn().Dur("wait", wait).Msg("Vital request delayed while backing off")
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}

	if vital {
		for _, limiter := range rl.limiters {
			if err := limiter.Wait(ctx); err != nil {
				log.Warn().Err(err).Msg("Vital request could not wait for the restrictions")
				return false
			}
		}
		return true
	}

	// Non vital: reserve on every limiter and give everything back
	// if any of them would make us wait
	now := time.Now()
	reservations := make([]*rate.Reservation, 0, len(rl.limiters))
	allowed := true
	for _, limiter := range rl.limiters {
		r := limiter.ReserveN(now, 1)
		reservations = append(reservations, r)
		if !r.OK() || r.DelayFrom(now) > 0 {
			allowed = false
			break
		}
	}
	if !allowed {
		for _, r := range reservations {
			r.CancelAt(now)
		}
		log.Warn().Msg("Rejecting a non vital request because restrictions do not allow it")
	}
	return allowed
}

// Called when the upstream answered with a rate limit status
func (rl *RateLimiter) ReceivedRateLimit() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.backoff.Start()
}

func (rl *RateLimiter) backoffRemaining() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.backoff.Remaining()
}
