package clock

import "time"

// Clock abstracts time lookups so engine behavior is reproducible in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns a Clock pinned to the given instant.
func Fixed(at time.Time) Clock {
	return fixedClock{at: at.UTC()}
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time {
	return c.at
}
