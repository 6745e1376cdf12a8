package util

import "time"

// Clock supplies the current time. Order nonces and authentication
// messages are derived from it.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// NowMillis returns the clock's time in Unix milliseconds.
func NowMillis(c Clock) uint64 {
	return uint64(c.Now().UnixMilli())
}
