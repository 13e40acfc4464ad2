package circuitbreaker

import "time"

// Clock provides time abstraction so that open-timeout transitions can be
// tested without real sleeps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
