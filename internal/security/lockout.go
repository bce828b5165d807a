package security

import (
	"fmt"
	"time"

	"github.com/campusfair/gatekeeper/internal/models"
)

// LockoutConfig holds the policy knobs for progressive account lockout.
type LockoutConfig struct {
	MaxAttempts    int
	InitialLockout time.Duration
	MaxLockout     time.Duration
	AttemptWindow  time.Duration
	Progressive    bool
}

// DefaultLockoutConfig returns the default lockout policy settings.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:    5,
		InitialLockout: 5 * time.Minute,
		MaxLockout:     60 * time.Minute,
		AttemptWindow:  15 * time.Minute,
		Progressive:    true,
	}
}

// Decision is the outcome of a single-scope lockout check.
type Decision struct {
	Allowed     bool
	Remaining   int
	LockedUntil time.Time
	Message     string
}

// BlockedBy tags which scope produced a denied combined decision.
type BlockedBy string

const (
	BlockedByNone     BlockedBy = ""
	BlockedByUsername BlockedBy = "username"
	BlockedByIP       BlockedBy = "ip"
	BlockedByBoth     BlockedBy = "both"
)

// CombinedDecision is the result of gating a login on both the username and
// IP scopes.
type CombinedDecision struct {
	Decision
	BlockedBy BlockedBy
}

// LockoutPolicy is pure decision logic over attempt history. It holds no
// state and reads no clocks of its own; callers pass the record and now.
type LockoutPolicy struct {
	cfg LockoutConfig
}

// NewLockoutPolicy creates a policy from config.
func NewLockoutPolicy(cfg LockoutConfig) *LockoutPolicy {
	return &LockoutPolicy{cfg: cfg}
}

// Config returns the policy configuration.
func (p *LockoutPolicy) Config() LockoutConfig { return p.cfg }

// Check evaluates one (identifier, scope) record. A missing record, an
// expired lockout, or an expired attempt window all count as Clear: a full
// budget of attempts remains. The record itself is never mutated here;
// lockout expiry is lazy so escalation history survives.
func (p *LockoutPolicy) Check(rec models.AttemptRecord, exists bool, now time.Time) Decision {
	if !exists {
		return Decision{Allowed: true, Remaining: p.cfg.MaxAttempts}
	}

	if rec.Locked(now) {
		wait := rec.LockedUntil.Sub(now).Round(time.Second)
		return Decision{
			Allowed:     false,
			Remaining:   0,
			LockedUntil: rec.LockedUntil,
			Message:     fmt.Sprintf("too many failed attempts, try again in %s", wait),
		}
	}

	if !rec.LockedUntil.IsZero() || rec.WindowExpired(p.cfg.AttemptWindow, now) {
		return Decision{Allowed: true, Remaining: p.cfg.MaxAttempts}
	}

	remaining := p.cfg.MaxAttempts - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: remaining > 0, Remaining: remaining}
}

// ShouldLock reports whether a failure count triggers the Locked transition.
func (p *LockoutPolicy) ShouldLock(count int) bool {
	return count >= p.cfg.MaxAttempts
}

// LockDuration computes the lockout length for an identifier that has
// already been locked consecutiveLockouts times before this one:
// min(initial * 2^consecutiveLockouts, max). With progressive lockout
// disabled the duration is always the initial one.
func (p *LockoutPolicy) LockDuration(consecutiveLockouts int) time.Duration {
	if !p.cfg.Progressive || consecutiveLockouts <= 0 {
		return p.cfg.InitialLockout
	}

	d := p.cfg.InitialLockout
	for i := 0; i < consecutiveLockouts; i++ {
		d *= 2
		if d >= p.cfg.MaxLockout {
			return p.cfg.MaxLockout
		}
	}
	return d
}

// Combine merges the username-scope and IP-scope decisions; the more
// restrictive result wins and the outcome is tagged with which scope blocked.
func Combine(username, ip Decision) CombinedDecision {
	switch {
	case username.Allowed && ip.Allowed:
		combined := username
		if ip.Remaining < combined.Remaining {
			combined.Remaining = ip.Remaining
		}
		return CombinedDecision{Decision: combined, BlockedBy: BlockedByNone}
	case !username.Allowed && ip.Allowed:
		return CombinedDecision{Decision: username, BlockedBy: BlockedByUsername}
	case username.Allowed && !ip.Allowed:
		return CombinedDecision{Decision: ip, BlockedBy: BlockedByIP}
	default:
		combined := username
		if ip.LockedUntil.After(combined.LockedUntil) {
			combined = ip
		}
		return CombinedDecision{Decision: combined, BlockedBy: BlockedByBoth}
	}
}
