package security

import (
	"github.com/campusfair/gatekeeper/internal/clock"
	"github.com/campusfair/gatekeeper/internal/models"
)

// FailureOutcome summarizes one recorded login failure for the caller:
// the post-failure combined decision plus the security events it implies.
type FailureOutcome struct {
	Decision CombinedDecision

	// UsernameLocked / IPLocked report a transition into Locked caused by
	// this failure.
	UsernameLocked bool
	IPLocked       bool

	// CredentialStuffing is set when the IP-wide failure count reaches twice
	// the per-identifier threshold, the signature of one IP spreading
	// failures across many usernames.
	CredentialStuffing bool

	IPFailureCount int
}

// LoginGuard gates login attempts on both the username and IP scopes.
// It owns no policy or storage of its own; it sequences the attempt store
// and the pure lockout policy.
type LoginGuard struct {
	attempts *AttemptStore
	policy   *LockoutPolicy
	clock    clock.Clock
}

// NewLoginGuard creates a LoginGuard.
func NewLoginGuard(attempts *AttemptStore, policy *LockoutPolicy, clk clock.Clock) *LoginGuard {
	return &LoginGuard{
		attempts: attempts,
		policy:   policy,
		clock:    clk,
	}
}

// Check evaluates both scopes without recording anything; the more
// restrictive decision wins. Defends against targeted-account attacks and
// distributed credential stuffing from a single IP at once.
func (g *LoginGuard) Check(username, ip string) CombinedDecision {
	now := g.clock.Now()

	userRec, userOK := g.attempts.Peek(username, models.ScopeUsername)
	ipRec, ipOK := g.attempts.Peek(ip, models.ScopeIP)

	return Combine(
		g.policy.Check(userRec, userOK, now),
		g.policy.Check(ipRec, ipOK, now),
	)
}

// RecordFailure registers a failed credential check against both scopes and
// reports what it caused. The IP counter increments on every failed
// username, which is what makes the stuffing signature observable.
func (g *LoginGuard) RecordFailure(username, ip string) FailureOutcome {
	now := g.clock.Now()

	userBefore, userHad := g.attempts.Peek(username, models.ScopeUsername)
	ipBefore, ipHad := g.attempts.Peek(ip, models.ScopeIP)

	userRec := g.attempts.Record(username, models.ScopeUsername)
	ipRec := g.attempts.Record(ip, models.ScopeIP)

	now = g.clock.Now()
	decision := Combine(
		g.policy.Check(userRec, true, now),
		g.policy.Check(ipRec, true, now),
	)

	return FailureOutcome{
		Decision:           decision,
		UsernameLocked:     userRec.Locked(now) && !(userHad && userBefore.Locked(now)),
		IPLocked:           ipRec.Locked(now) && !(ipHad && ipBefore.Locked(now)),
		CredentialStuffing: ipRec.Count == 2*g.policy.Config().MaxAttempts,
		IPFailureCount:     ipRec.Count,
	}
}

// RecordSuccess reacts to a successful authentication: the username record
// and its escalation history are dropped, the IP counter is decremented by
// one.
func (g *LoginGuard) RecordSuccess(username, ip string) {
	g.attempts.Clear(username, models.ScopeUsername)
	g.attempts.Clear(ip, models.ScopeIP)
}
