package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/campusfair/gatekeeper/internal/audit"
	"github.com/campusfair/gatekeeper/internal/background"
	"github.com/campusfair/gatekeeper/internal/clock"
	"github.com/campusfair/gatekeeper/internal/config"
	"github.com/campusfair/gatekeeper/internal/database"
	"github.com/campusfair/gatekeeper/internal/handlers"
	"github.com/campusfair/gatekeeper/internal/metrics"
	"github.com/campusfair/gatekeeper/internal/middleware"
	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/notify"
	"github.com/campusfair/gatekeeper/internal/repositories"
	"github.com/campusfair/gatekeeper/internal/routes"
	"github.com/campusfair/gatekeeper/internal/security"
	"github.com/campusfair/gatekeeper/internal/services"
	"github.com/campusfair/gatekeeper/internal/session"
	"github.com/campusfair/gatekeeper/internal/store"
	pkgauth "github.com/campusfair/gatekeeper/pkg/auth"
	pkghttp "github.com/campusfair/gatekeeper/pkg/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize repositories
	staffRepo := repositories.NewStaffRepository(db)
	studentRepo := repositories.NewStudentRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	systemClock := clock.System()

	// Security core. Attempt tracking and rate limiting each get their own
	// counter store so eviction pressure on one never trims the other.
	lockoutPolicy := security.NewLockoutPolicy(cfg.Lockout)
	attemptStore := security.NewAttemptStore(store.NewMemoryStore(), lockoutPolicy, cfg.Attempts, systemClock, logger)
	loginGuard := security.NewLoginGuard(attemptStore, lockoutPolicy, systemClock)
	rateLimiter := security.NewRateLimiter(store.NewMemoryStore(), cfg.RateLimit, systemClock, logger)
	timingDelay := security.NewTimingDelay(cfg.Timing)

	// Audit trail
	trail := audit.NewTrail(auditRepo, audit.Config{
		WriteTimeout: cfg.Audit.WriteTimeout,
		Retention:    cfg.Audit.Retention,
	}, systemClock, logger)

	// Session manager
	sessionManager := session.NewManager(session.Config{
		Secret:           cfg.Session.Secret,
		StaffTTL:         cfg.Session.StaffTTL,
		StudentTTL:       cfg.Session.StudentTTL,
		RefreshThreshold: cfg.Session.RefreshThreshold,
	}, systemClock)

	// Admin alerting
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Alerts.Enabled {
		sesNotifier, err := notify.NewSESNotifier(cfg.Alerts.AWSRegion, cfg.Alerts.FromAddress, cfg.Alerts.AdminAddresses, logger)
		if err != nil {
			logger.Error("failed to initialize SES notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
	authService := services.NewAuthService(staffRepo, studentRepo, loginGuard, rateLimiter, sessionManager, trail, notifier, systemClock, logger)
	validationService := services.NewValidationService(studentRepo, trail, services.ValidationConfig{
		SuspicionWindow:    cfg.Audit.SuspicionWindow,
		SuspicionThreshold: cfg.Audit.SuspicionThreshold,
	}, logger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := session.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "strict",
	}
	authHandler := handlers.NewAuthHandler(authService, ipConfig, cookieConfig)
	validateHandler := handlers.NewValidateHandler(validationService, timingDelay, ipConfig)
	adminHandler := handlers.NewAdminHandler(trail, trail, attemptStore)
	healthHandler := handlers.NewHealthHandler(db)

	// Bootstrap first admin account if configured
	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminStaff(bootstrapCtx, staffRepo, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	bootstrapCancel()

	// Audit retention cleanup
	cleanupManager := background.NewCleanupManager(trail, logger, cfg.Audit.CleanupInterval)

	// Setup router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           3600,
	}))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))
	router.Use(middleware.FloodLimitByIP(middleware.DefaultFloodLimit()))

	// Register routes
	routes.RegisterRoutes(router, authHandler, validateHandler, adminHandler, healthHandler, sessionManager, rateLimiter, ipConfig, cookieConfig)

	// Prometheus scrape endpoint
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Let in-flight audit writes land before the process exits
	trail.Flush()

	logger.Info("server stopped gracefully")
}

// ensureAdminStaff creates the first admin account if ADMIN_USERNAME and
// ADMIN_PASSWORD are set
func ensureAdminStaff(ctx context.Context, staffRepo *repositories.StaffRepository, logger *slog.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminPassword == "" {
		logger.Info("no ADMIN_USERNAME or ADMIN_PASSWORD set, skipping admin bootstrap")
		return nil
	}

	_, err := staffRepo.GetByUsername(ctx, adminUsername)
	if err == nil {
		logger.Info("admin account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.StaffUser{
		Username:     adminUsername,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         models.RoleAdmin,
		Active:       true,
	}

	if _, err := staffRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	logger.Info("admin account created")
	return nil
}
