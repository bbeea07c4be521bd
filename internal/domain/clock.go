package domain

import "time"

// Clock supplies the current time to the exchange.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock, truncated to whole seconds.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC().Truncate(time.Second) })
