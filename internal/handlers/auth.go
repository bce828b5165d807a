package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/campusfair/gatekeeper/internal/middleware"
	"github.com/campusfair/gatekeeper/internal/services"
	"github.com/campusfair/gatekeeper/internal/session"
	pkghttp "github.com/campusfair/gatekeeper/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password, totpCode, ipAddress, userAgent string) (*services.LoginResult, error)
	StudentCheckIn(ctx context.Context, code, ipAddress, userAgent string) (*services.LoginResult, error)
	Logout(ctx context.Context, token, ipAddress, userAgent string)
	Refresh(ctx context.Context, token, ipAddress string) (string, time.Time, bool, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	cookies  session.CookieConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, cookies session.CookieConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		cookies:  cookies,
	}
}

// Request DTOs

// LoginRequest represents the request body for staff login
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=128"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code" validate:"omitempty,len=6"`
}

// CheckInRequest represents the request body for a student check-in scan
type CheckInRequest struct {
	Code string `json:"code" validate:"required,min=6,max=16"`
}

// SessionResponse represents an issued session in HTTP responses
type SessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	SubjectID string `json:"subject_id"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Login handles staff login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.Login(r.Context(), req.Username, req.Password, req.TOTPCode, ipAddress, userAgent)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	session.SetSessionCookie(w, result.Token, result.ExpiresAt, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, sessionResponse(result))
}

// CheckIn handles a student badge scan
func (h *AuthHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.StudentCheckIn(r.Context(), req.Code, ipAddress, userAgent)
	if err != nil {
		// Unknown and malformed codes share one response; there is no
		// attempt budget to report for scans.
		var credErr *services.CredentialsError
		if errors.As(err, &credErr) {
			pkghttp.WriteUnauthorized(w, "badge code not recognized")
			return
		}
		h.writeLoginError(w, err)
		return
	}

	session.SetSessionCookie(w, result.Token, result.ExpiresAt, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, sessionResponse(result))
}

// Logout destroys the caller's session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r)
	if token != "" {
		ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
		h.service.Logout(r.Context(), token, ipAddress, r.Header.Get("User-Agent"))
	}
	session.ClearSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh rotates the caller's session token when it is close to expiry
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r)
	if token == "" {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	rotated, expiresAt, changed, err := h.service.Refresh(r.Context(), token, ipAddress)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "invalid or expired session")
		return
	}

	if changed {
		session.SetSessionCookie(w, rotated, expiresAt, h.cookies)
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"token":      rotated,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
		"rotated":    changed,
	})
}

// Me returns the caller's session view; useful for dashboards restoring state
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"subject_id": sess.SubjectID,
		"kind":       string(sess.Kind),
		"role":       sess.Role,
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// writeLoginError maps service errors onto HTTP. The bodies stay deliberately
// vague: remaining attempts and lockout expiry are the only specifics shared.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var rateErr *services.RateLimitedError
	var lockErr *services.LockedError
	var credErr *services.CredentialsError

	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rateErr.RetryAfter.Seconds())))
		pkghttp.WriteTooManyRequests(w, "rate limit exceeded, try again later")
	case errors.As(err, &lockErr):
		retryAfter := time.Until(lockErr.Until)
		if retryAfter > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
		}
		pkghttp.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":        "account_locked",
			"message":      lockErr.Message,
			"locked_until": lockErr.Until.UTC().Format(time.RFC3339),
			"blocked_by":   string(lockErr.BlockedBy),
		})
	case errors.As(err, &credErr):
		pkghttp.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"error":              "invalid_credentials",
			"message":            "authentication failed",
			"attempts_remaining": credErr.Remaining,
		})
	default:
		pkghttp.WriteInternalError(w, "internal server error")
	}
}

func sessionResponse(result *services.LoginResult) SessionResponse {
	return SessionResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		SubjectID: result.SubjectID,
		Name:      result.Name,
		Role:      result.Role,
	}
}
