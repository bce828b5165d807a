package security_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campusfair/gatekeeper/internal/security"
	"github.com/campusfair/gatekeeper/internal/store"
)

func newRateLimiter(clk *fakeClock, cfg security.RateLimiterConfig) *security.RateLimiter {
	return security.NewRateLimiter(store.NewMemoryStore(), cfg, clk, discardLogger())
}

func TestRateLimiter_AllowsUpToLimitThenDenies(t *testing.T) {
	clk := newFakeClock(testNow)
	limiter := newRateLimiter(clk, security.DefaultRateLimiterConfig())

	for i := 0; i < 5; i++ {
		decision := limiter.Check("10.0.0.1", security.ClassLogin)
		assert.True(t, decision.Allowed, "request %d within budget", i+1)
		assert.Equal(t, 4-i, decision.Remaining)
	}

	decision := limiter.Check("10.0.0.1", security.ClassLogin)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Equal(t, testNow.Add(15*time.Minute), decision.ResetAt)
	assert.Equal(t, 15*time.Minute, decision.RetryAfter)
}

func TestRateLimiter_WindowResetRestoresBudget(t *testing.T) {
	clk := newFakeClock(testNow)
	limiter := newRateLimiter(clk, security.DefaultRateLimiterConfig())

	for i := 0; i < 6; i++ {
		limiter.Check("10.0.0.1", security.ClassLogin)
	}

	clk.Advance(15*time.Minute + time.Second)
	decision := limiter.Check("10.0.0.1", security.ClassLogin)

	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
}

func TestRateLimiter_UnknownClassFailsClosed(t *testing.T) {
	clk := newFakeClock(testNow)
	limiter := newRateLimiter(clk, security.DefaultRateLimiterConfig())

	decision := limiter.Check("10.0.0.1", security.EndpointClass("bogus"))

	assert.False(t, decision.Allowed)
	assert.Equal(t, time.Minute, decision.RetryAfter)
}

func TestRateLimiter_ClassesHaveIndependentBudgets(t *testing.T) {
	clk := newFakeClock(testNow)
	limiter := newRateLimiter(clk, security.DefaultRateLimiterConfig())

	for i := 0; i < 6; i++ {
		limiter.Check("10.0.0.1", security.ClassLogin)
	}

	decision := limiter.Check("10.0.0.1", security.ClassScan)
	assert.True(t, decision.Allowed, "exhausting login does not touch the scan budget")
}

func TestRateLimiter_IdentifiersAreIndependent(t *testing.T) {
	clk := newFakeClock(testNow)
	limiter := newRateLimiter(clk, security.DefaultRateLimiterConfig())

	for i := 0; i < 6; i++ {
		limiter.Check("10.0.0.1", security.ClassLogin)
	}

	decision := limiter.Check("10.0.0.2", security.ClassLogin)
	assert.True(t, decision.Allowed)
}

func TestRateLimiter_ResetAllRestoresEveryClass(t *testing.T) {
	clk := newFakeClock(testNow)
	limiter := newRateLimiter(clk, security.DefaultRateLimiterConfig())

	for i := 0; i < 6; i++ {
		limiter.Check("10.0.0.1", security.ClassLogin)
		limiter.Check("10.0.0.1", security.ClassScan)
	}

	limiter.ResetAll("10.0.0.1")

	assert.True(t, limiter.Check("10.0.0.1", security.ClassLogin).Allowed)
	assert.True(t, limiter.Check("10.0.0.1", security.ClassScan).Allowed)
}

func TestRateLimiter_DefaultClassTable(t *testing.T) {
	limits := security.DefaultClassLimits()

	expected := map[security.EndpointClass]security.ClassLimit{
		security.ClassLogin:        {Window: 15 * time.Minute, MaxRequests: 5},
		security.ClassRegistration: {Window: time.Hour, MaxRequests: 10},
		security.ClassAPI:          {Window: time.Minute, MaxRequests: 100},
		security.ClassScan:         {Window: time.Minute, MaxRequests: 30},
		security.ClassFeedback:     {Window: time.Minute, MaxRequests: 20},
		security.ClassExport:       {Window: time.Hour, MaxRequests: 5},
		security.ClassHealth:       {Window: time.Minute, MaxRequests: 60},
		security.ClassIDsDownload:  {Window: time.Hour, MaxRequests: 10},
		security.ClassValidate:     {Window: time.Minute, MaxRequests: 100},
	}
	assert.Equal(t, expected, limits)
}

func TestRateLimiter_SweepDropsExpiredWindows(t *testing.T) {
	clk := newFakeClock(testNow)
	backing := store.NewMemoryStore()
	limiter := security.NewRateLimiter(backing, security.DefaultRateLimiterConfig(), clk, discardLogger())

	for i := 0; i < 20; i++ {
		limiter.Check(fmt.Sprintf("ip-%d", i), security.ClassValidate)
	}
	assert.Equal(t, 20, backing.Len())

	// All validate windows (1m) are stale after two minutes; the next check
	// runs the sweep.
	clk.Advance(2 * time.Minute)
	limiter.Check("fresh", security.ClassValidate)

	assert.Equal(t, 1, backing.Len())
}
