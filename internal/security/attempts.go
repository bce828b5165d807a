package security

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/campusfair/gatekeeper/internal/clock"
	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/store"
)

const (
	attemptNamespacePrefix = "attempts:"
	lockoutNamespacePrefix = "lockouts:"

	// Fraction of records evicted when the cardinality cap is exceeded.
	evictFraction = 0.20
)

// AttemptStoreConfig holds sizing and maintenance knobs for the attempt
// store.
type AttemptStoreConfig struct {
	AttemptWindow   time.Duration
	CleanupInterval time.Duration
	MaxRecords      int
}

// DefaultAttemptStoreConfig returns the default attempt store settings.
func DefaultAttemptStoreConfig() AttemptStoreConfig {
	return AttemptStoreConfig{
		AttemptWindow:   15 * time.Minute,
		CleanupInterval: 1 * time.Minute,
		MaxRecords:      10000,
	}
}

// AttemptStore tracks failed login attempts per (identifier, scope) and the
// consecutive-lockout history used for progressive backoff. All mutations go
// through the counter store's atomic Mutate, so concurrent failure bursts
// for one identifier never lose increments.
type AttemptStore struct {
	counters store.KeyedCounterStore
	policy   *LockoutPolicy
	cfg      AttemptStoreConfig
	clock    clock.Clock
	logger   *slog.Logger

	lastCleanup atomic.Int64 // unix nanos of the last opportunistic sweep
}

// NewAttemptStore creates an AttemptStore on top of a counter store.
func NewAttemptStore(counters store.KeyedCounterStore, policy *LockoutPolicy, cfg AttemptStoreConfig, clk clock.Clock, logger *slog.Logger) *AttemptStore {
	return &AttemptStore{
		counters: counters,
		policy:   policy,
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
	}
}

func attemptKey(identifier string, scope models.Scope) store.Key {
	return store.Key{Namespace: attemptNamespacePrefix + string(scope), ID: identifier}
}

func lockoutKey(identifier string, scope models.Scope) store.Key {
	return store.Key{Namespace: lockoutNamespacePrefix + string(scope), ID: identifier}
}

func recordFromEntry(e store.Entry) models.AttemptRecord {
	return models.AttemptRecord{
		Count:          e.Count,
		FirstAttemptAt: e.WindowStart,
		LastAttemptAt:  e.LastSeen,
		LockedUntil:    e.LockedUntil,
	}
}

// Record registers one failed attempt. A new window starts when none is
// active or the previous one expired. Crossing the max-attempts threshold
// while not already locked transitions the identifier into Locked and bumps
// its consecutive-lockout history, which sets the progressive duration.
func (s *AttemptStore) Record(identifier string, scope models.Scope) models.AttemptRecord {
	now := s.clock.Now()
	s.maybeCleanup(now)

	entry, _ := s.counters.Mutate(attemptKey(identifier, scope), func(e store.Entry, exists bool) (store.Entry, bool) {
		if !exists || now.Sub(e.WindowStart) > s.cfg.AttemptWindow {
			lockedUntil := e.LockedUntil
			if !exists {
				lockedUntil = time.Time{}
			}
			return store.Entry{
				Count:       1,
				WindowStart: now,
				LastSeen:    now,
				LockedUntil: lockedUntil,
				LastTouched: now,
			}, true
		}
		e.Count++
		e.LastSeen = now
		e.LastTouched = now
		return e, true
	})

	rec := recordFromEntry(entry)
	if !s.policy.ShouldLock(rec.Count) || rec.Locked(now) {
		return rec
	}

	// Locked transition: escalate first so the duration reflects how many
	// lockouts preceded this one.
	history, _ := s.counters.Mutate(lockoutKey(identifier, scope), func(e store.Entry, exists bool) (store.Entry, bool) {
		e.Count++
		e.LastSeen = now
		return e, true
	})
	duration := s.policy.LockDuration(history.Count - 1)
	lockedUntil := now.Add(duration)

	entry, _ = s.counters.Mutate(attemptKey(identifier, scope), func(e store.Entry, exists bool) (store.Entry, bool) {
		e.LockedUntil = lockedUntil
		e.LastTouched = now
		return e, true
	})

	s.logger.Warn("identifier locked out",
		slog.String("scope", string(scope)),
		slog.Int("consecutive_lockouts", history.Count),
		slog.Duration("duration", duration),
	)
	return recordFromEntry(entry)
}

// Peek reads the current record without mutation.
func (s *AttemptStore) Peek(identifier string, scope models.Scope) (models.AttemptRecord, bool) {
	s.maybeCleanup(s.clock.Now())

	e, ok := s.counters.Get(attemptKey(identifier, scope))
	if !ok {
		return models.AttemptRecord{}, false
	}
	return recordFromEntry(e), true
}

// Clear reacts to a successful authentication. Username scope drops the
// record and its lockout history outright. IP scope only decrements the
// count by one: one valid credential must not reset an attacker's IP-wide
// counter, and the IP's escalation history is never touched.
func (s *AttemptStore) Clear(identifier string, scope models.Scope) {
	switch scope {
	case models.ScopeUsername:
		s.counters.Delete(attemptKey(identifier, scope))
		s.counters.Delete(lockoutKey(identifier, scope))
	case models.ScopeIP:
		s.counters.Mutate(attemptKey(identifier, scope), func(e store.Entry, exists bool) (store.Entry, bool) {
			if !exists {
				return e, false
			}
			if e.Count > 0 {
				e.Count--
			}
			return e, true
		})
	}
}

// ConsecutiveLockouts reports how many times the identifier has been locked
// without an intervening successful authentication.
func (s *AttemptStore) ConsecutiveLockouts(identifier string, scope models.Scope) int {
	e, ok := s.counters.Get(lockoutKey(identifier, scope))
	if !ok {
		return 0
	}
	return e.Count
}

// maybeCleanup runs the amortized garbage collection at most once per
// cleanup interval. Attempt records are dropped once their window and any
// lockout have expired and they have been idle for a full window; lockout
// history is exempt so repeat offenders keep escalating. When the hard
// cardinality cap is exceeded, the least-recently-touched fifth of the
// attempt records is evicted.
func (s *AttemptStore) maybeCleanup(now time.Time) {
	last := s.lastCleanup.Load()
	if now.UnixNano()-last < s.cfg.CleanupInterval.Nanoseconds() {
		return
	}
	if !s.lastCleanup.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	removed := s.counters.Sweep(func(key store.Key, e store.Entry) bool {
		if !isAttemptNamespace(key.Namespace) {
			return false
		}
		windowExpired := now.Sub(e.WindowStart) > s.cfg.AttemptWindow
		lockExpired := e.LockedUntil.IsZero() || now.After(e.LockedUntil)
		idle := now.Sub(e.LastSeen) > s.cfg.AttemptWindow
		return windowExpired && lockExpired && idle
	})

	evicted := 0
	if s.cfg.MaxRecords > 0 && s.counters.Len() > s.cfg.MaxRecords {
		n := int(float64(s.counters.Len()) * evictFraction)
		evicted = s.counters.Evict(n, func(key store.Key, e store.Entry) time.Time {
			if !isAttemptNamespace(key.Namespace) {
				return time.Time{}
			}
			return e.LastTouched
		})
	}

	if removed > 0 || evicted > 0 {
		s.logger.Debug("attempt store cleanup",
			slog.Int("expired", removed),
			slog.Int("evicted", evicted),
		)
	}
}

func isAttemptNamespace(ns string) bool {
	return len(ns) >= len(attemptNamespacePrefix) && ns[:len(attemptNamespacePrefix)] == attemptNamespacePrefix
}
