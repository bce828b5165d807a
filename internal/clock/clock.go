// Package clock abstracts wall-clock reads so time-dependent state machines
// (attempt windows, lockout expiry, rate-limit windows) are deterministic
// under test.
package clock

import "time"

// Clock yields the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by time.Now.
func System() Clock { return systemClock{} }
