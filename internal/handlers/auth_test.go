package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfair/gatekeeper/internal/handlers"
	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/security"
	"github.com/campusfair/gatekeeper/internal/services"
	"github.com/campusfair/gatekeeper/internal/session"
)

// mockAuthService implements handlers.AuthServiceInterface for testing
type mockAuthService struct {
	LoginFunc          func(ctx context.Context, username, password, totpCode, ipAddress, userAgent string) (*services.LoginResult, error)
	StudentCheckInFunc func(ctx context.Context, code, ipAddress, userAgent string) (*services.LoginResult, error)
	LogoutFunc         func(ctx context.Context, token, ipAddress, userAgent string)
	RefreshFunc        func(ctx context.Context, token, ipAddress string) (string, time.Time, bool, error)
}

func (m *mockAuthService) Login(ctx context.Context, username, password, totpCode, ipAddress, userAgent string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, errors.New("unexpected Login call")
	}
	return m.LoginFunc(ctx, username, password, totpCode, ipAddress, userAgent)
}

func (m *mockAuthService) StudentCheckIn(ctx context.Context, code, ipAddress, userAgent string) (*services.LoginResult, error) {
	if m.StudentCheckInFunc == nil {
		return nil, errors.New("unexpected StudentCheckIn call")
	}
	return m.StudentCheckInFunc(ctx, code, ipAddress, userAgent)
}

func (m *mockAuthService) Logout(ctx context.Context, token, ipAddress, userAgent string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, token, ipAddress, userAgent)
	}
}

func (m *mockAuthService) Refresh(ctx context.Context, token, ipAddress string) (string, time.Time, bool, error) {
	if m.RefreshFunc == nil {
		return "", time.Time{}, false, errors.New("unexpected Refresh call")
	}
	return m.RefreshFunc(ctx, token, ipAddress)
}

func newAuthHandler(mock *mockAuthService) *handlers.AuthHandler {
	return handlers.NewAuthHandler(mock, nil, session.CookieConfig{SameSite: "strict"})
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest("POST", path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

// ── Login ─────────────────────────────────────────────────────────────────────

func TestLogin_Success_Returns200AndCookie(t *testing.T) {
	expiresAt := time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC)
	mock := &mockAuthService{
		LoginFunc: func(ctx context.Context, username, password, totpCode, ipAddress, userAgent string) (*services.LoginResult, error) {
			assert.Equal(t, "alice", username, "username is lower-cased before the service sees it")
			return &services.LoginResult{
				Token:     "signed.jwt.token",
				ExpiresAt: expiresAt,
				SubjectID: "staff-1",
				Name:      "Alice",
				Role:      models.RoleStaff,
			}, nil
		},
	}
	h := newAuthHandler(mock)

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/auth/login", `{"username":"  Alice ","password":"hunter2!"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "signed.jwt.token", body["token"])
	assert.Equal(t, "staff-1", body["subject_id"])
	assert.Equal(t, "2026-03-14T17:00:00Z", body["expires_at"])

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.Equal(t, "signed.jwt.token", cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestLogin_MalformedBody_Returns400(t *testing.T) {
	h := newAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/auth/login", `{"username":`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_MissingPassword_Returns400(t *testing.T) {
	h := newAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/auth/login", `{"username":"alice"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["message"], "Password")
}

func TestLogin_BadCredentials_Returns401WithRemaining(t *testing.T) {
	mock := &mockAuthService{
		LoginFunc: func(ctx context.Context, username, password, totpCode, ipAddress, userAgent string) (*services.LoginResult, error) {
			return nil, &services.CredentialsError{Remaining: 3}
		},
	}
	h := newAuthHandler(mock)

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/auth/login", `{"username":"alice","password":"wrong"}`))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "invalid_credentials", body["error"])
	assert.Equal(t, float64(3), body["attempts_remaining"])
}

func TestLogin_Locked_Returns429WithRetryAfter(t *testing.T) {
	until := time.Now().Add(5 * time.Minute)
	mock := &mockAuthService{
		LoginFunc: func(ctx context.Context, username, password, totpCode, ipAddress, userAgent string) (*services.LoginResult, error) {
			return nil, &services.LockedError{
				Until:     until,
				BlockedBy: security.BlockedByUsername,
				Message:   "too many failed attempts, try again in 5m0s",
			}
		},
	}
	h := newAuthHandler(mock)

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/auth/login", `{"username":"alice","password":"wrong"}`))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	body := decodeBody(t, w)
	assert.Equal(t, "account_locked", body["error"])
	assert.Equal(t, "username", body["blocked_by"])
	assert.Equal(t, until.UTC().Format(time.RFC3339), body["locked_until"])
}

func TestLogin_RateLimited_Returns429(t *testing.T) {
	mock := &mockAuthService{
		LoginFunc: func(ctx context.Context, username, password, totpCode, ipAddress, userAgent string) (*services.LoginResult, error) {
			return nil, &services.RateLimitedError{RetryAfter: 90 * time.Second}
		},
	}
	h := newAuthHandler(mock)

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/auth/login", `{"username":"alice","password":"hunter2!"}`))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
}

func TestLogin_ServiceFailure_Returns500(t *testing.T) {
	mock := &mockAuthService{
		LoginFunc: func(ctx context.Context, username, password, totpCode, ipAddress, userAgent string) (*services.LoginResult, error) {
			return nil, errors.New("session issue: internal server error")
		},
	}
	h := newAuthHandler(mock)

	w := httptest.NewRecorder()
	h.Login(w, postJSON("/auth/login", `{"username":"alice","password":"hunter2!"}`))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ── CheckIn ───────────────────────────────────────────────────────────────────

func TestCheckIn_Success_Returns200(t *testing.T) {
	mock := &mockAuthService{
		StudentCheckInFunc: func(ctx context.Context, code, ipAddress, userAgent string) (*services.LoginResult, error) {
			assert.Equal(t, "AB1234", code)
			return &services.LoginResult{
				Token:     "student.jwt.token",
				ExpiresAt: time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC),
				SubjectID: "stu-1",
				Name:      "Jordan",
			}, nil
		},
	}
	h := newAuthHandler(mock)

	w := httptest.NewRecorder()
	h.CheckIn(w, postJSON("/auth/check-in", `{"code":"AB1234"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "stu-1", body["subject_id"])
	assert.NotContains(t, body, "role")
}

func TestCheckIn_UnknownCode_Returns401Generic(t *testing.T) {
	mock := &mockAuthService{
		StudentCheckInFunc: func(ctx context.Context, code, ipAddress, userAgent string) (*services.LoginResult, error) {
			return nil, &services.CredentialsError{}
		},
	}
	h := newAuthHandler(mock)

	w := httptest.NewRecorder()
	h.CheckIn(w, postJSON("/auth/check-in", `{"code":"ZZ9999"}`))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "badge code not recognized", body["message"])
	assert.NotContains(t, body, "attempts_remaining")
}

func TestCheckIn_CodeTooShort_Returns400(t *testing.T) {
	h := newAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.CheckIn(w, postJSON("/auth/check-in", `{"code":"AB1"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ── Logout ────────────────────────────────────────────────────────────────────

func TestLogout_WithToken_DestroysAndClearsCookie(t *testing.T) {
	var destroyed string
	mock := &mockAuthService{
		LogoutFunc: func(ctx context.Context, token, ipAddress, userAgent string) {
			destroyed = token
		},
	}
	h := newAuthHandler(mock)

	r := httptest.NewRequest("POST", "/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer signed.jwt.token")
	w := httptest.NewRecorder()
	h.Logout(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "signed.jwt.token", destroyed)

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestLogout_WithoutToken_StillClearsCookie(t *testing.T) {
	h := newAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest("POST", "/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, sessionCookie(w))
}

// ── Refresh ───────────────────────────────────────────────────────────────────

func TestRefresh_Rotated_SetsNewCookie(t *testing.T) {
	expiresAt := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)
	mock := &mockAuthService{
		RefreshFunc: func(ctx context.Context, token, ipAddress string) (string, time.Time, bool, error) {
			return "rotated.jwt.token", expiresAt, true, nil
		},
	}
	h := newAuthHandler(mock)

	r := httptest.NewRequest("POST", "/auth/refresh", nil)
	r.Header.Set("Authorization", "Bearer stale.jwt.token")
	w := httptest.NewRecorder()
	h.Refresh(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "rotated.jwt.token", body["token"])
	assert.Equal(t, true, body["rotated"])

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.Equal(t, "rotated.jwt.token", cookie.Value)
}

func TestRefresh_FreshToken_NoRotation(t *testing.T) {
	mock := &mockAuthService{
		RefreshFunc: func(ctx context.Context, token, ipAddress string) (string, time.Time, bool, error) {
			return token, time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC), false, nil
		},
	}
	h := newAuthHandler(mock)

	r := httptest.NewRequest("POST", "/auth/refresh", nil)
	r.Header.Set("Authorization", "Bearer fresh.jwt.token")
	w := httptest.NewRecorder()
	h.Refresh(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["rotated"])
	assert.Nil(t, sessionCookie(w))
}

func TestRefresh_InvalidToken_Returns401(t *testing.T) {
	mock := &mockAuthService{
		RefreshFunc: func(ctx context.Context, token, ipAddress string) (string, time.Time, bool, error) {
			return "", time.Time{}, false, models.ErrUnauthorized
		},
	}
	h := newAuthHandler(mock)

	r := httptest.NewRequest("POST", "/auth/refresh", nil)
	r.Header.Set("Authorization", "Bearer expired.jwt.token")
	w := httptest.NewRecorder()
	h.Refresh(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_NoToken_Returns401(t *testing.T) {
	h := newAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.Refresh(w, httptest.NewRequest("POST", "/auth/refresh", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
