package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterRejectsNonVitalOverBudget(t *testing.T) {
	rl := NewRateLimiter([]Restriction{{Requests: 2, Duration: time.Hour}}, time.Second)
	ctx := context.Background()

	assert.True(t, rl.Allowed(ctx, false))
	assert.True(t, rl.Allowed(ctx, false))
	assert.False(t, rl.Allowed(ctx, false))
}

func TestRateLimiterVitalGivesUpWithContext(t *testing.T) {
	rl := NewRateLimiter([]Restriction{{Requests: 1, Duration: time.Hour}}, time.Second)
	assert.True(t, rl.Allowed(context.Background(), true))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, rl.Allowed(ctx, true))
}

func TestRateLimiterBacksOffAfterRateLimit(t *testing.T) {
	rl := NewRateLimiter(nil, time.Hour)
	assert.True(t, rl.Allowed(context.Background(), false))

	rl.ReceivedRateLimit()
	assert.False(t, rl.Allowed(context.Background(), false))
}
