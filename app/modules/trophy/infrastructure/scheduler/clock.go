package trophyscheduler

import "time"

// Clock abstracts wall-clock reads so ticks can be evaluated at arbitrary
// instants in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
