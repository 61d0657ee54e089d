package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStopwatch(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewStopwatch(time.Minute)
	s.Clock = clock.Now

	stopped, _ := s.Stopped()
	assert.True(t, stopped, "a stopwatch never started counts as stopped")

	s.Start()
	stopped, elapsed := s.Stopped()
	assert.False(t, stopped)
	assert.Equal(t, -time.Minute, elapsed)
	assert.Equal(t, time.Minute, s.Remaining())

	clock.Advance(90 * time.Second)
	stopped, elapsed = s.Stopped()
	assert.True(t, stopped)
	assert.Equal(t, 30*time.Second, elapsed)
	assert.Zero(t, s.Remaining())
}

func TestTimedExecutor(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	runs := 0
	te := NewTimedExecutorWithClock(5*time.Minute, func() { runs++ }, clock.Now)

	require.True(t, te.Execute(), "first call runs the task")
	require.False(t, te.Execute())
	clock.Advance(4 * time.Minute)
	require.False(t, te.Execute())
	clock.Advance(time.Minute)
	require.True(t, te.Execute())
	assert.Equal(t, 2, runs)

	te.Expire()
	require.True(t, te.Execute())
	assert.Equal(t, 3, runs)
}
