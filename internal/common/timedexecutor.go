package common

import (
	"time"
)

// Give the timed executor a task and a timeout.
// Call the execute function from time to time.
// If the function gets called when the timeout has been reached,
// the provided task will execute. If not, the call will do nothing.
// The first call always executes the task
type TimedExecutor struct {
	stopwatch Stopwatch
	task      func()
}

// Create a timed executor provided a timeout and a task
func NewTimedExecutor(timeout time.Duration, task func()) *TimedExecutor {
	return &TimedExecutor{NewStopwatch(timeout), task}
}

// Same as NewTimedExecutor but measuring time with the provided clock
func NewTimedExecutorWithClock(timeout time.Duration, task func(), clock func() time.Time) *TimedExecutor {
	te := NewTimedExecutor(timeout, task)
	te.stopwatch.Clock = clock
	return te
}

// Execute the task if the timeout has been reached, else do nothing.
// Returns true if the task was executed
func (te *TimedExecutor) Execute() bool {
	if stopped, _ := te.stopwatch.Stopped(); stopped {
		te.stopwatch.Start()
		te.task()
		return true
	}
	return false
}

// Make the next call to Execute run the task regardless of the timeout
func (te *TimedExecutor) Expire() {
	te.stopwatch.Stop()
}
