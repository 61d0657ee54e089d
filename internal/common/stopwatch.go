package common

import (
	"time"
)

// This stopwatch keeps track of time. You can set a timeout for it,
// make it start counting time, and ask it if the timeout has been reached.
// A stopwatch that has never been started counts as stopped
type Stopwatch struct {
	Timeout   time.Duration
	Clock     func() time.Time
	startTime time.Time
	Running   bool
}

func NewStopwatch(timeout time.Duration) Stopwatch {
	return Stopwatch{Timeout: timeout}
}

func (s *Stopwatch) Start() {
	s.Running = true
	s.startTime = s.now()
}

func (s *Stopwatch) Stop() {
	s.Running = false
}

// Report if the timeout has been reached, together with
// the time elapsed since that happened.
// Note that if the duration is negative, the timeout still
// has not been reached
func (s *Stopwatch) Stopped() (bool, time.Duration) {
	if !s.Running {
		return true, 0
	}
	elapsed := s.now().Sub(s.startTime.Add(s.Timeout))
	if elapsed >= 0 {
		s.Running = false
		return true, elapsed
	}
	return false, elapsed
}

// Time left until the timeout is reached, zero if already reached
func (s *Stopwatch) Remaining() time.Duration {
	if stopped, _ := s.Stopped(); stopped {
		return 0
	}
	return s.startTime.Add(s.Timeout).Sub(s.now())
}

func (s *Stopwatch) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
