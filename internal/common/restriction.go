package common

import (
	"time"

	"golang.org/x/time/rate"
)

// A restriction means that only the specified number of requests
// are allowed for a specific time duration
type Restriction struct {
	Requests int           `koanf:"requests" validate:"gt=0"`
	Duration time.Duration `koanf:"duration" validate:"gt=0"`
}

// Translate the restriction into a token bucket that refills
// the whole budget evenly over the duration
func (rest Restriction) Limiter() *rate.Limiter {
	every := rest.Duration / time.Duration(rest.Requests)
	return rate.NewLimiter(rate.Every(every), rest.Requests)
}
