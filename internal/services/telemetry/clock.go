package telemetry

import "time"

// Clock supplies timestamps for events and session boundaries. Injecting it
// keeps ordering and duration behavior testable.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

var _ Clock = RealClock{}

func (RealClock) Now() time.Time {
	return time.Now()
}
