package roster

import (
	"errors"
	"time"

	"crewbot/internal/common"
	"crewbot/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// One breaker per upstream endpoint, so that a dead region
// does not cost a full timeout on every tick
func newBreaker(name string, settings BreakerSettings) *gobreaker.CircuitBreaker[[]byte] {

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		// Our own rate limiter holding a request back says nothing about the upstream
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, common.ErrRequestNotAllowed)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
