// Package session issues and validates the signed tokens carried by staff
// and student actors. Credential verification happens upstream; this package
// only owns the token lifecycle once the caller has confirmed identity.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campusfair/gatekeeper/internal/clock"
	"github.com/campusfair/gatekeeper/internal/models"
)

// Config holds token lifecycle settings.
type Config struct {
	Secret           string
	StaffTTL         time.Duration
	StudentTTL       time.Duration
	RefreshThreshold time.Duration
}

// DefaultConfig returns the default session settings (secret excluded).
func DefaultConfig() Config {
	return Config{
		StaffTTL:         8 * time.Hour,
		StudentTTL:       12 * time.Hour,
		RefreshThreshold: 30 * time.Minute,
	}
}

// Manager signs, validates, refreshes, and destroys session tokens.
type Manager struct {
	cfg     Config
	clock   clock.Clock
	revoked *revocationList
}

// NewManager creates a Manager.
func NewManager(cfg Config, clk clock.Clock) *Manager {
	return &Manager{
		cfg:     cfg,
		clock:   clk,
		revoked: newRevocationList(clk),
	}
}

// Issue signs a token for the subject. Staff subjects must carry a valid
// role; students carry none.
func (m *Manager) Issue(subjectID, role string, kind models.SubjectKind) (string, time.Time, error) {
	var ttl time.Duration
	switch kind {
	case models.SubjectStaff:
		if !models.ValidStaffRole(role) {
			return "", time.Time{}, models.ErrBadRequest
		}
		ttl = m.cfg.StaffTTL
	case models.SubjectStudent:
		if role != "" {
			return "", time.Time{}, models.ErrBadRequest
		}
		ttl = m.cfg.StudentTTL
	default:
		return "", time.Time{}, models.ErrBadRequest
	}

	now := m.clock.Now()
	expiresAt := now.Add(ttl)
	claims := &models.SessionClaims{
		Kind:      kind,
		SubjectID: subjectID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies a token and returns the session it carries. Every
// failure mode (bad signature, expiry, malformed input, revocation) resolves
// to the same ErrUnauthorized; the reason is never leaked to the caller.
func (m *Manager) Validate(tokenString string) (*models.Session, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	if m.revoked.contains(claims.ID) {
		return nil, models.ErrUnauthorized
	}

	return &models.Session{
		TokenID:   claims.ID,
		Kind:      claims.Kind,
		SubjectID: claims.SubjectID,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RefreshIfNeeded rotates the token once its remaining lifetime drops under
// the threshold, so long-lived active sessions never hit a forced re-login.
// Returns the token to use, its expiry, and whether it was rotated.
func (m *Manager) RefreshIfNeeded(tokenString string) (string, time.Time, bool, error) {
	sess, err := m.Validate(tokenString)
	if err != nil {
		return "", time.Time{}, false, err
	}

	if sess.ExpiresAt.Sub(m.clock.Now()) > m.cfg.RefreshThreshold {
		return tokenString, sess.ExpiresAt, false, nil
	}

	rotated, expiresAt, err := m.Issue(sess.SubjectID, sess.Role, sess.Kind)
	if err != nil {
		return "", time.Time{}, false, err
	}
	m.revoked.add(sess.TokenID, sess.ExpiresAt)
	return rotated, expiresAt, true, nil
}

// Destroy invalidates a token. Destroying an already-invalid or absent
// session is not an error.
func (m *Manager) Destroy(tokenString string) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return
	}
	m.revoked.add(claims.ID, claims.ExpiresAt.Time)
}

func (m *Manager) parse(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(m.cfg.Secret), nil
	}, jwt.WithTimeFunc(m.clock.Now))
	if err != nil || !token.Valid {
		return nil, models.ErrUnauthorized
	}
	if claims.ID == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, models.ErrUnauthorized
	}
	if claims.Kind != models.SubjectStaff && claims.Kind != models.SubjectStudent {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}
