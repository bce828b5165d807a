package security

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/campusfair/gatekeeper/internal/clock"
	"github.com/campusfair/gatekeeper/internal/store"
)

// EndpointClass groups API endpoints that share one rate-limit budget.
type EndpointClass string

const (
	ClassLogin        EndpointClass = "login"
	ClassRegistration EndpointClass = "registration"
	ClassAPI          EndpointClass = "api"
	ClassScan         EndpointClass = "scan"
	ClassFeedback     EndpointClass = "feedback"
	ClassExport       EndpointClass = "export"
	ClassHealth       EndpointClass = "health"
	ClassIDsDownload  EndpointClass = "ids-download"
	ClassValidate     EndpointClass = "validate"
)

// ClassLimit is the fixed-window budget of one endpoint class.
type ClassLimit struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultClassLimits returns the static per-class configuration table.
func DefaultClassLimits() map[EndpointClass]ClassLimit {
	return map[EndpointClass]ClassLimit{
		ClassLogin:        {Window: 15 * time.Minute, MaxRequests: 5},
		ClassRegistration: {Window: 1 * time.Hour, MaxRequests: 10},
		ClassAPI:          {Window: 1 * time.Minute, MaxRequests: 100},
		ClassScan:         {Window: 1 * time.Minute, MaxRequests: 30},
		ClassFeedback:     {Window: 1 * time.Minute, MaxRequests: 20},
		ClassExport:       {Window: 1 * time.Hour, MaxRequests: 5},
		ClassHealth:       {Window: 1 * time.Minute, MaxRequests: 60},
		ClassIDsDownload:  {Window: 1 * time.Hour, MaxRequests: 10},
		ClassValidate:     {Window: 1 * time.Minute, MaxRequests: 100},
	}
}

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiterConfig sizes the limiter and its maintenance.
type RateLimiterConfig struct {
	Limits          map[EndpointClass]ClassLimit
	CleanupInterval time.Duration
	MaxRecords      int
}

// DefaultRateLimiterConfig returns the default limiter settings.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Limits:          DefaultClassLimits(),
		CleanupInterval: 1 * time.Minute,
		MaxRecords:      50000,
	}
}

// RateLimiter counts requests per (endpoint class, identifier) in fixed
// windows that reset wholesale on expiry, trading perfect accuracy for O(1)
// memory per key.
type RateLimiter struct {
	counters store.KeyedCounterStore
	cfg      RateLimiterConfig
	clock    clock.Clock
	logger   *slog.Logger

	lastSweep atomic.Int64
}

// NewRateLimiter creates a RateLimiter on top of a counter store.
func NewRateLimiter(counters store.KeyedCounterStore, cfg RateLimiterConfig, clk clock.Clock, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		counters: counters,
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
	}
}

func rateKey(identifier string, class EndpointClass) store.Key {
	return store.Key{Namespace: "rate:" + string(class), ID: identifier}
}

// Check counts this request against the identifier's budget for the class.
// An unknown class denies: an internal misconfiguration must fail closed,
// never let traffic through unmetered.
func (l *RateLimiter) Check(identifier string, class EndpointClass) RateDecision {
	limit, ok := l.cfg.Limits[class]
	if !ok {
		l.logger.Error("rate limit check for unknown endpoint class",
			slog.String("class", string(class)))
		return RateDecision{Allowed: false, RetryAfter: time.Minute}
	}

	now := l.clock.Now()
	l.maybeSweep(now)

	entry, _ := l.counters.Mutate(rateKey(identifier, class), func(e store.Entry, exists bool) (store.Entry, bool) {
		if !exists || !now.Before(e.WindowStart.Add(limit.Window)) {
			return store.Entry{Count: 1, WindowStart: now, LastSeen: now, LastTouched: now}, true
		}
		e.Count++
		e.LastSeen = now
		e.LastTouched = now
		return e, true
	})

	resetAt := entry.WindowStart.Add(limit.Window)
	remaining := limit.MaxRequests - entry.Count
	if remaining < 0 {
		remaining = 0
	}

	decision := RateDecision{
		Allowed:   entry.Count <= limit.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !decision.Allowed {
		decision.RetryAfter = resetAt.Sub(now)
	}
	return decision
}

// Reset clears the identifier's window for one class.
func (l *RateLimiter) Reset(identifier string, class EndpointClass) {
	l.counters.Delete(rateKey(identifier, class))
}

// ResetAll clears every class window for the identifier, used after a
// successful authentication so a legitimate user is not penalized for
// pre-auth probing.
func (l *RateLimiter) ResetAll(identifier string) {
	for class := range l.cfg.Limits {
		l.counters.Delete(rateKey(identifier, class))
	}
}

// maybeSweep drops expired windows at most once per cleanup interval, then
// enforces the hard cap by evicting the oldest windows first.
func (l *RateLimiter) maybeSweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < l.cfg.CleanupInterval.Nanoseconds() {
		return
	}
	if !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	l.counters.Sweep(func(key store.Key, e store.Entry) bool {
		class, ok := rateClass(key.Namespace)
		if !ok {
			return false
		}
		limit, known := l.cfg.Limits[class]
		if !known {
			return true
		}
		return !now.Before(e.WindowStart.Add(limit.Window))
	})

	if l.cfg.MaxRecords > 0 && l.counters.Len() > l.cfg.MaxRecords {
		over := l.counters.Len() - l.cfg.MaxRecords
		l.counters.Evict(over, func(key store.Key, e store.Entry) time.Time {
			if _, ok := rateClass(key.Namespace); !ok {
				return time.Time{}
			}
			return e.WindowStart
		})
	}
}

func rateClass(namespace string) (EndpointClass, bool) {
	const prefix = "rate:"
	if len(namespace) <= len(prefix) || namespace[:len(prefix)] != prefix {
		return "", false
	}
	return EndpointClass(namespace[len(prefix):]), true
}
