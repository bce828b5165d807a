package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/campusfair/gatekeeper/internal/handlers"
	"github.com/campusfair/gatekeeper/internal/middleware"
	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/security"
	"github.com/campusfair/gatekeeper/internal/session"
	pkghttp "github.com/campusfair/gatekeeper/pkg/http"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	validateHandler *handlers.ValidateHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
	sessionManager *session.Manager,
	limiter *security.RateLimiter,
	ipConfig *pkghttp.IPConfig,
	cookies session.CookieConfig,
) {
	router.With(middleware.RateLimitByClass(limiter, security.ClassHealth, ipConfig)).
		Get("/health", healthHandler.Health)

	// Public routes - no authentication required. Login and check-in charge
	// their rate classes inside AuthService, which also clears the budget on
	// a successful attempt; gating them here too would count every request
	// twice against the same (IP, class) window.
	router.Post("/auth/login", authHandler.Login)
	router.Post("/auth/check-in", authHandler.CheckIn)
	router.With(middleware.RateLimitByClass(limiter, security.ClassValidate, ipConfig)).
		Post("/students/validate", validateHandler.Validate)

	// Logout and refresh accept a token but never require a valid one
	router.With(middleware.RateLimitByClass(limiter, security.ClassAPI, ipConfig)).
		Post("/auth/logout", authHandler.Logout)
	router.With(middleware.RateLimitByClass(limiter, security.ClassAPI, ipConfig)).
		Post("/auth/refresh", authHandler.Refresh)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByClass(limiter, security.ClassAPI, ipConfig))
		r.Use(middleware.SessionAuth(sessionManager, cookies))

		r.Get("/auth/me", authHandler.Me)

		// Staff dashboard
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStaff())
			r.Get("/admin/audit", adminHandler.ListAuditLogs)
			r.Get("/admin/lockouts/{scope}/{id}", adminHandler.GetLockoutStatus)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStaff(models.RoleAdmin))
			r.Delete("/admin/lockouts/{scope}/{id}", adminHandler.ClearLockout)
		})
	})
}
