package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/campusfair/gatekeeper/internal/audit"
	"github.com/campusfair/gatekeeper/internal/clock"
	"github.com/campusfair/gatekeeper/internal/metrics"
	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/notify"
	"github.com/campusfair/gatekeeper/internal/security"
	"github.com/campusfair/gatekeeper/internal/session"
	pkgauth "github.com/campusfair/gatekeeper/pkg/auth"
)

// StaffRepository is the credential source for staff logins. Credential
// storage itself is an external collaborator of the security core.
type StaffRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.StaffUser, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// StudentRepository resolves student badge codes at check-in.
type StudentRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Student, error)
	MarkCheckedIn(ctx context.Context, id string, at time.Time) error
}

// LoginResult carries the issued session back to the handler.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	SubjectID string
	Name      string
	Role      string
}

// AuthService orchestrates the login path: rate limit, dual lockout check,
// credential check, then session issue plus telemetry.
type AuthService struct {
	staff    StaffRepository
	students StudentRepository
	guard    *security.LoginGuard
	limiter  *security.RateLimiter
	sessions *session.Manager
	trail    *audit.Trail
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(
	staff StaffRepository,
	students StudentRepository,
	guard *security.LoginGuard,
	limiter *security.RateLimiter,
	sessions *session.Manager,
	trail *audit.Trail,
	notifier notify.Notifier,
	clk clock.Clock,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		staff:    staff,
		students: students,
		guard:    guard,
		limiter:  limiter,
		sessions: sessions,
		trail:    trail,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

// Login authenticates a staff member. Policy denials come back as
// RateLimitedError, LockedError, or CredentialsError; any internal failure
// while computing a security decision denies rather than allows.
func (s *AuthService) Login(ctx context.Context, username, password, totpCode, ipAddress, userAgent string) (*LoginResult, error) {
	rate := s.limiter.Check(ipAddress, security.ClassLogin)
	if !rate.Allowed {
		metrics.RateLimitTripsTotal.WithLabelValues(string(security.ClassLogin)).Inc()
		s.trail.Log(models.AuditLog{
			Action:    models.AuditActionRateLimit,
			IPAddress: ipAddress,
			UserAgent: &userAgent,
			Success:   false,
			Details:   models.AuditMetadata{"class": string(security.ClassLogin)},
		})
		return nil, &RateLimitedError{RetryAfter: rate.RetryAfter, ResetAt: rate.ResetAt}
	}

	decision := s.guard.Check(username, ipAddress)
	if !decision.Allowed {
		s.trail.Log(models.AuditLog{
			Action:    models.AuditActionAccessDenied,
			ActorID:   &username,
			IPAddress: ipAddress,
			UserAgent: &userAgent,
			Success:   false,
			Details:   models.AuditMetadata{"blocked_by": string(decision.BlockedBy)},
		})
		return nil, &LockedError{
			Until:     decision.LockedUntil,
			BlockedBy: decision.BlockedBy,
			Message:   decision.Message,
		}
	}

	staff, err := s.staff.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil, s.failLogin(username, ipAddress, userAgent, "unknown username")
	case err != nil:
		// Credential source outage: deny without burning the caller's
		// attempt budget.
		s.logger.Error("credential lookup failed", slog.Any("error", err))
		return nil, fmt.Errorf("credential lookup: %w", models.ErrInternalServer)
	}

	if !staff.Active {
		return nil, s.failLogin(username, ipAddress, userAgent, "account inactive")
	}

	if err := pkgauth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, s.failLogin(username, ipAddress, userAgent, "password mismatch")
	}

	if staff.TOTPSecret != "" && !totp.Validate(totpCode, staff.TOTPSecret) {
		return nil, s.failLogin(username, ipAddress, userAgent, "totp mismatch")
	}

	token, expiresAt, err := s.sessions.Issue(staff.ID, staff.Role, models.SubjectStaff)
	if err != nil {
		s.logger.Error("session issue failed", slog.Any("error", err))
		return nil, fmt.Errorf("session issue: %w", models.ErrInternalServer)
	}

	s.guard.RecordSuccess(username, ipAddress)
	s.limiter.ResetAll(ipAddress)

	if err := s.staff.TouchLastLogin(ctx, staff.ID, s.clock.Now()); err != nil {
		s.logger.Warn("failed to record last login", slog.Any("error", err))
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.trail.Log(models.AuditLog{
		Action:    models.AuditActionLogin,
		ActorID:   &staff.ID,
		ActorRole: &staff.Role,
		IPAddress: ipAddress,
		UserAgent: &userAgent,
		Success:   true,
	})

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		SubjectID: staff.ID,
		Name:      staff.Name,
		Role:      staff.Role,
	}, nil
}

// failLogin records the failure against both scopes and translates the
// outcome into the caller-facing error. The reason stays in the audit
// details for dashboards; the caller only ever sees remaining attempts.
func (s *AuthService) failLogin(username, ipAddress, userAgent, reason string) error {
	outcome := s.guard.RecordFailure(username, ipAddress)

	metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
	s.trail.Log(models.AuditLog{
		Action:    models.AuditActionLogin,
		ActorID:   &username,
		IPAddress: ipAddress,
		UserAgent: &userAgent,
		Success:   false,
		Details:   models.AuditMetadata{"reason": reason},
	})

	if outcome.UsernameLocked {
		s.noteLockout(username, models.ScopeUsername, ipAddress, outcome.Decision.LockedUntil)
	}
	if outcome.IPLocked {
		s.noteLockout(ipAddress, models.ScopeIP, ipAddress, outcome.Decision.LockedUntil)
	}
	if outcome.CredentialStuffing {
		metrics.SuspiciousActivityTotal.Inc()
		s.trail.Log(models.AuditLog{
			Action:    models.AuditActionSuspiciousActivity,
			IPAddress: ipAddress,
			Success:   false,
			Details: models.AuditMetadata{
				"pattern":     "credential_stuffing",
				"ip_failures": outcome.IPFailureCount,
			},
		})
		s.notifier.SuspiciousActivity(ipAddress, outcome.IPFailureCount)
	}

	if !outcome.Decision.Allowed {
		return &LockedError{
			Until:     outcome.Decision.LockedUntil,
			BlockedBy: outcome.Decision.BlockedBy,
			Message:   outcome.Decision.Message,
		}
	}
	return &CredentialsError{Remaining: outcome.Decision.Remaining}
}

func (s *AuthService) noteLockout(identifier string, scope models.Scope, ipAddress string, until time.Time) {
	metrics.LockoutsTotal.WithLabelValues(string(scope)).Inc()
	s.trail.Log(models.AuditLog{
		Action:    models.AuditActionLockout,
		IPAddress: ipAddress,
		Success:   false,
		Details: models.AuditMetadata{
			"scope":        string(scope),
			"locked_until": until.UTC().Format(time.RFC3339),
		},
	})
	s.notifier.Lockout(identifier, string(scope), until)
}

// StudentCheckIn authenticates a student by badge code at a check-in scan
// and issues a student session. Unknown and malformed codes resolve to the
// same generic denial.
func (s *AuthService) StudentCheckIn(ctx context.Context, code, ipAddress, userAgent string) (*LoginResult, error) {
	rate := s.limiter.Check(ipAddress, security.ClassScan)
	if !rate.Allowed {
		metrics.RateLimitTripsTotal.WithLabelValues(string(security.ClassScan)).Inc()
		return nil, &RateLimitedError{RetryAfter: rate.RetryAfter, ResetAt: rate.ResetAt}
	}

	normalized, ok := NormalizeStudentCode(code)
	if ok {
		student, err := s.students.GetByCode(ctx, normalized)
		if err == nil {
			return s.completeCheckIn(ctx, student, ipAddress, userAgent)
		}
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("student lookup failed", slog.Any("error", err))
		}
	}

	s.trail.Log(models.AuditLog{
		Action:    models.AuditActionCheckIn,
		IPAddress: ipAddress,
		UserAgent: &userAgent,
		Success:   false,
	})
	return nil, &CredentialsError{}
}

func (s *AuthService) completeCheckIn(ctx context.Context, student *models.Student, ipAddress, userAgent string) (*LoginResult, error) {
	token, expiresAt, err := s.sessions.Issue(student.ID, "", models.SubjectStudent)
	if err != nil {
		s.logger.Error("student session issue failed", slog.Any("error", err))
		return nil, fmt.Errorf("session issue: %w", models.ErrInternalServer)
	}

	if err := s.students.MarkCheckedIn(ctx, student.ID, s.clock.Now()); err != nil {
		s.logger.Warn("failed to mark check-in", slog.Any("error", err))
	}

	resourceType := models.AuditResourceTypeStudent
	s.trail.Log(models.AuditLog{
		Action:       models.AuditActionCheckIn,
		ActorID:      &student.ID,
		IPAddress:    ipAddress,
		UserAgent:    &userAgent,
		Success:      true,
		ResourceType: &resourceType,
		ResourceID:   &student.ID,
	})

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		SubjectID: student.ID,
		Name:      student.Name,
	}, nil
}

// Logout destroys the session. Destroying an already-invalid token is not
// an error.
func (s *AuthService) Logout(ctx context.Context, token, ipAddress, userAgent string) {
	var actorID *string
	if sess, err := s.sessions.Validate(token); err == nil {
		actorID = &sess.SubjectID
	}

	s.sessions.Destroy(token)

	s.trail.Log(models.AuditLog{
		Action:    models.AuditActionLogout,
		ActorID:   actorID,
		IPAddress: ipAddress,
		UserAgent: &userAgent,
		Success:   true,
	})
}

// Refresh rotates the token when its remaining lifetime has dropped under
// the refresh threshold.
func (s *AuthService) Refresh(ctx context.Context, token, ipAddress string) (string, time.Time, bool, error) {
	rotated, expiresAt, changed, err := s.sessions.RefreshIfNeeded(token)
	if err != nil {
		return "", time.Time{}, false, models.ErrUnauthorized
	}

	if changed {
		if sess, verr := s.sessions.Validate(rotated); verr == nil {
			s.trail.Log(models.AuditLog{
				Action:    models.AuditActionSessionRefresh,
				ActorID:   &sess.SubjectID,
				IPAddress: ipAddress,
				Success:   true,
			})
		}
	}
	return rotated, expiresAt, changed, nil
}
