package models

import "time"

// Scope is the classification axis under which failed-attempt counters are
// tracked independently.
type Scope string

const (
	ScopeUsername Scope = "username"
	ScopeIP       Scope = "ip"
)

// AttemptRecord tracks failed login attempts for one (identifier, scope)
// pair within the current attempt window.
type AttemptRecord struct {
	Count          int
	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
	LockedUntil    time.Time // zero value means not locked
}

// Locked reports whether the record is under an active lockout at the given
// instant.
func (r AttemptRecord) Locked(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

// WindowExpired reports whether the attempt window has elapsed since the
// first failure.
func (r AttemptRecord) WindowExpired(window time.Duration, now time.Time) bool {
	return now.Sub(r.FirstAttemptAt) > window
}
