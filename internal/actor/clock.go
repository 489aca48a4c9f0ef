package actor

import "time"

// Clock provides a testable time source.
//
// Reducers stay deterministic and never read a Clock directly; runtimes and
// coordinators stamp inputs with Clock values before enqueueing them.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by time.Now.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }
