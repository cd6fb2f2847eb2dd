package app

import "time"

// Clock is the single source of truth for question timing. Client clocks are
// advisory; every accept/reject decision reads Now.
type Clock struct {
	now func() time.Time
}

// NewClock wraps now; a nil now means the wall clock.
func NewClock(now func() time.Time) Clock {
	if now == nil {
		now = time.Now
	}
	return Clock{now: now}
}

// Now returns the current instant.
func (c Clock) Now() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// ElapsedSince may be negative under clock skew; callers clamp for display.
// Decisions that compare several instants take one Now and subtract instead.
func (c Clock) ElapsedSince(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Remaining returns max(0, duration - elapsed).
func Remaining(duration, elapsed time.Duration) time.Duration {
	if left := duration - elapsed; left > 0 {
		return left
	}
	return 0
}

// questionClosed is the one rule deciding whether a question is still live.
func questionClosed(duration, elapsed time.Duration) bool {
	return elapsed >= duration
}
