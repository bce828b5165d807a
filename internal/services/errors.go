package services

import (
	"fmt"
	"time"

	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/security"
)

// CredentialsError is returned on a failed credential check. Remaining is
// the only precise number intentionally exposed; nothing about whether the
// username exists leaks through it.
type CredentialsError struct {
	Remaining int
}

func (e *CredentialsError) Error() string { return "invalid credentials" }

func (e *CredentialsError) Unwrap() error { return models.ErrInvalidCredentials }

// LockedError is returned while an identifier is under lockout.
type LockedError struct {
	Until     time.Time
	BlockedBy security.BlockedBy
	Message   string
}

func (e *LockedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return models.ErrAccountLocked.Error()
}

func (e *LockedError) Unwrap() error { return models.ErrAccountLocked }

// RateLimitedError is returned when an endpoint-class budget is exhausted.
type RateLimitedError struct {
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error { return models.ErrRateLimitExceeded }
