package driven

import "time"

// Clock abstracts wall-clock time so time-dependent components (expiry
// sweeps) can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
