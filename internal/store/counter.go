// Package store provides the keyed counter storage backing the attempt
// store, lockout history, and rate limiter. The interface assumes an atomic
// read-modify-write primitive per key so a remote atomic-counter backend can
// replace the in-process map without contract changes.
package store

import "time"

// Key identifies one counter bucket. Namespace separates concerns sharing a
// store (attempt scopes, lockout history, rate-limit classes).
type Key struct {
	Namespace string
	ID        string
}

// Entry is the value held per key. Individual consumers interpret the
// timestamp fields for their own windows; LastTouched orders eviction.
type Entry struct {
	Count       int
	WindowStart time.Time
	LastSeen    time.Time
	LockedUntil time.Time
	LastTouched time.Time
}

// MutateFunc receives the current entry (zero value when absent) and returns
// the replacement. Returning keep=false deletes the key instead.
type MutateFunc func(e Entry, exists bool) (next Entry, keep bool)

// KeyedCounterStore is the storage contract. Mutate must be atomic per key:
// no two concurrent calls for the same key may interleave their
// read-modify-write cycles.
type KeyedCounterStore interface {
	Get(key Key) (Entry, bool)
	Mutate(key Key, fn MutateFunc) (Entry, bool)
	Delete(key Key)
	Len() int

	// Sweep deletes every entry for which expired returns true and reports
	// how many were removed.
	Sweep(expired func(key Key, e Entry) bool) int

	// Evict removes up to n entries, oldest stamp first, and reports how
	// many were removed. Entries whose stamp is the zero time are exempt.
	Evict(n int, stamp func(key Key, e Entry) time.Time) int
}
