package schedule

import "time"

// State is the in-memory scheduling state of one input.
// It is lost on restart, which simply reschedules from the last checkpoint.
type State struct {
	// NextRun is the earliest time the next cycle may start
	NextRun time.Time
	// Level is the backoff exponent used for the next failure
	Level int
	// Failures counts consecutive failed cycles
	Failures int
	// Delay is the wait that produced NextRun
	Delay time.Duration
}

// NewState returns the initial state: due immediately, no failures
func NewState(now time.Time) State {
	return State{NextRun: now}
}

// Success resets the failure level and schedules the next regular run
func (s State) Success(spec Spec, now time.Time) State {
	next := NextRun(spec, s.NextRun, now)
	return State{
		NextRun: next,
		Delay:   next.Sub(now),
	}
}

// Failure schedules a retry after the backoff delay for the current level
// and raises the level, capped.
func (s State) Failure(base time.Duration, maxLevel int, now time.Time) State {
	delay := BackoffDelay(base, s.Level, maxLevel)
	level := s.Level + 1
	if level > maxLevel {
		level = maxLevel
	}
	return State{
		NextRun:  now.Add(delay),
		Level:    level,
		Failures: s.Failures + 1,
		Delay:    delay,
	}
}
