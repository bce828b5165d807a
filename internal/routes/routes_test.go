package routes_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusfair/gatekeeper/internal/audit"
	"github.com/campusfair/gatekeeper/internal/clock"
	"github.com/campusfair/gatekeeper/internal/handlers"
	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/notify"
	"github.com/campusfair/gatekeeper/internal/routes"
	"github.com/campusfair/gatekeeper/internal/security"
	"github.com/campusfair/gatekeeper/internal/services"
	"github.com/campusfair/gatekeeper/internal/session"
	"github.com/campusfair/gatekeeper/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staffDirectory is a fixed in-memory StaffRepository.
type staffDirectory struct {
	users map[string]*models.StaffUser
}

func (d staffDirectory) GetByUsername(ctx context.Context, username string) (*models.StaffUser, error) {
	u, ok := d.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (d staffDirectory) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return nil
}

// studentDirectory is a fixed in-memory StudentRepository.
type studentDirectory struct {
	students map[string]*models.Student
}

func (d studentDirectory) GetByCode(ctx context.Context, code string) (*models.Student, error) {
	s, ok := d.students[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (d studentDirectory) MarkCheckedIn(ctx context.Context, id string, at time.Time) error {
	return nil
}

type healthOK struct{}

func (healthOK) HealthCheck(ctx context.Context) error { return nil }

// newRouter wires the full public surface over real security components:
// one shared rate limiter, real attempt tracking, real lockout policy. The
// tests below walk whole requests through the router so the middleware and
// the service layer are exercised together.
func newRouter(t *testing.T, staff staffDirectory, students studentDirectory) chi.Router {
	t.Helper()

	clk := clock.System()
	log := discardLogger()

	policy := security.NewLockoutPolicy(security.DefaultLockoutConfig())
	attempts := security.NewAttemptStore(store.NewMemoryStore(), policy, security.DefaultAttemptStoreConfig(), clk, log)
	guard := security.NewLoginGuard(attempts, policy, clk)
	limiter := security.NewRateLimiter(store.NewMemoryStore(), security.DefaultRateLimiterConfig(), clk, log)

	sessionCfg := session.DefaultConfig()
	sessionCfg.Secret = "route-test-secret-0123456789abcd"
	sessions := session.NewManager(sessionCfg, clk)

	trail := audit.NewTrail(audit.NewMemoryRepository(), audit.DefaultConfig(), clk, log)
	t.Cleanup(trail.Flush)

	authService := services.NewAuthService(staff, students, guard, limiter, sessions, trail, notify.NoopNotifier{}, clk, log)
	validationService := services.NewValidationService(checkerFromDirectory(students), trail, services.ValidationConfig{}, log)

	cookies := session.CookieConfig{SameSite: "strict"}
	authHandler := handlers.NewAuthHandler(authService, nil, cookies)
	validateHandler := handlers.NewValidateHandler(validationService, security.NewTimingDelay(security.TimingConfig{}), nil)
	adminHandler := handlers.NewAdminHandler(trail, trail, attempts)
	healthHandler := handlers.NewHealthHandler(healthOK{})

	router := chi.NewRouter()
	routes.RegisterRoutes(router, authHandler, validateHandler, adminHandler, healthHandler, sessions, limiter, nil, cookies)
	return router
}

// checkerFromDirectory adapts the student directory to the validator's
// lookup interface.
type checkerFromDirectory studentDirectory

func (c checkerFromDirectory) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, ok := c.students[code]
	return ok, nil
}

func postFrom(router chi.Router, path, body, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func responseBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func routeTestHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

// Every failed login must reach the credential check until the account
// locks: the login budget is charged exactly once per request, so five
// attempts fit inside the five-request window and the lockout engages
// before the rate limiter does.
func TestRoutes_Login_FailuresReachLockout(t *testing.T) {
	staff := staffDirectory{users: map[string]*models.StaffUser{
		"alice": {
			ID:           "staff-alice",
			Username:     "alice",
			PasswordHash: routeTestHash(t, "correct-horse"),
			Name:         "Alice",
			Role:         models.RoleStaff,
			Active:       true,
		},
	}}
	router := newRouter(t, staff, studentDirectory{})

	attackerAddr := "203.0.113.7:40000"
	badLogin := `{"username":"alice","password":"wrong"}`

	for i, wantRemaining := range []float64{4, 3, 2, 1} {
		w := postFrom(router, "/auth/login", badLogin, attackerAddr)
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d must reach the credential check", i+1)

		body := responseBody(t, w)
		assert.Equal(t, "invalid_credentials", body["error"])
		assert.Equal(t, wantRemaining, body["attempts_remaining"])
	}

	// The fifth failure trips the lockout, not the rate limiter.
	w := postFrom(router, "/auth/login", badLogin, attackerAddr)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "account_locked", responseBody(t, w)["error"])

	// The sixth request from the same IP has spent the request budget.
	w = postFrom(router, "/auth/login", badLogin, attackerAddr)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limit_exceeded", responseBody(t, w)["error"])

	// Alice herself, from her own machine with the right password, is still
	// held out by the username lock.
	w = postFrom(router, "/auth/login", `{"username":"alice","password":"correct-horse"}`, "198.51.100.20:51000")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := responseBody(t, w)
	assert.Equal(t, "account_locked", body["error"])
	assert.Equal(t, "username", body["blocked_by"])
}

func TestRoutes_Login_SuccessWithinBudget(t *testing.T) {
	staff := staffDirectory{users: map[string]*models.StaffUser{
		"bob": {
			ID:           "staff-bob",
			Username:     "bob",
			PasswordHash: routeTestHash(t, "hunter22hunter22"),
			Name:         "Bob",
			Role:         models.RoleStaff,
			Active:       true,
		},
	}}
	router := newRouter(t, staff, studentDirectory{})

	w := postFrom(router, "/auth/login", `{"username":"bob","password":"hunter22hunter22"}`, "203.0.113.7:40000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "staff-bob", responseBody(t, w)["subject_id"])
}

// Check-in scans share the same single-charge rule on the scan class.
func TestRoutes_CheckIn_ScanBudgetChargedOncePerRequest(t *testing.T) {
	router := newRouter(t, staffDirectory{}, studentDirectory{})

	scanAddr := "203.0.113.8:40000"
	for i := 0; i < 30; i++ {
		w := postFrom(router, "/auth/check-in", fmt.Sprintf(`{"code":"AB10%03d"}`, i), scanAddr)
		require.Equal(t, http.StatusUnauthorized, w.Code, "scan %d must reach the badge lookup", i+1)
	}

	w := postFrom(router, "/auth/check-in", `{"code":"AB19999"}`, scanAddr)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limit_exceeded", responseBody(t, w)["error"])
}
