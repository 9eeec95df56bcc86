// Package clock declares the time sources shared by the operation store, the
// janitor, and the progress poller.
package clock

import "time"

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Timer extends Clock with a one-shot wait so polling loops can be driven by a
// fake in tests.
type Timer interface {
	Clock
	After(d time.Duration) <-chan time.Time
}
