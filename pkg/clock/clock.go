// Package clock provides an injectable time source so lifecycle timestamps
// are deterministic under test.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// New returns a Clock backed by the wall clock (UTC).
func New() Clock {
	return realClock{}
}

// Fixed is a Clock that always returns the same instant. Advance it
// explicitly when a test needs time to pass.
type Fixed struct {
	Time time.Time
}

func (f *Fixed) Now() time.Time {
	return f.Time
}

func (f *Fixed) Advance(d time.Duration) {
	f.Time = f.Time.Add(d)
}
