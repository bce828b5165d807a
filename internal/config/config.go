package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/campusfair/gatekeeper/internal/security"
)

// Config is read once at process start; runtime behavior never depends on
// re-reading the environment mid-request.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Session   SessionConfig
	Lockout   security.LockoutConfig
	Attempts  security.AttemptStoreConfig
	RateLimit security.RateLimiterConfig
	Audit     AuditConfig
	Timing    security.TimingConfig
	Alerts    AlertConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type SessionConfig struct {
	Secret           string
	StaffTTL         time.Duration
	StudentTTL       time.Duration
	RefreshThreshold time.Duration
}

type AuditConfig struct {
	WriteTimeout       time.Duration
	Retention          time.Duration
	SuspicionWindow    time.Duration
	SuspicionThreshold int
	CleanupInterval    time.Duration
}

type AlertConfig struct {
	Enabled        bool
	AWSRegion      string
	FromAddress    string
	AdminAddresses []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatekeeper"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: splitAndTrim(getEnv("TRUSTED_PROXIES", "")),
		},
		Session: SessionConfig{
			Secret:           sessionSecret,
			StaffTTL:         getEnvAsDuration("STAFF_SESSION_TTL", 8*time.Hour),
			StudentTTL:       getEnvAsDuration("STUDENT_SESSION_TTL", 12*time.Hour),
			RefreshThreshold: getEnvAsDuration("SESSION_REFRESH_THRESHOLD", 30*time.Minute),
		},
		Lockout: security.LockoutConfig{
			MaxAttempts:    getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			InitialLockout: time.Duration(getEnvAsInt("INITIAL_LOCKOUT_MINUTES", 5)) * time.Minute,
			MaxLockout:     time.Duration(getEnvAsInt("MAX_LOCKOUT_MINUTES", 60)) * time.Minute,
			AttemptWindow:  time.Duration(getEnvAsInt("ATTEMPT_WINDOW_MINUTES", 15)) * time.Minute,
			Progressive:    getEnvAsBool("PROGRESSIVE_LOCKOUT", true),
		},
		Attempts: security.AttemptStoreConfig{
			AttemptWindow:   time.Duration(getEnvAsInt("ATTEMPT_WINDOW_MINUTES", 15)) * time.Minute,
			CleanupInterval: getEnvAsDuration("ATTEMPT_CLEANUP_INTERVAL", 1*time.Minute),
			MaxRecords:      getEnvAsInt("ATTEMPT_MAX_RECORDS", 10000),
		},
		RateLimit: security.RateLimiterConfig{
			Limits:          parseClassLimits(),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", 1*time.Minute),
			MaxRecords:      getEnvAsInt("RATE_LIMIT_MAX_RECORDS", 50000),
		},
		Audit: AuditConfig{
			WriteTimeout:       getEnvAsDuration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
			Retention:          time.Duration(getEnvAsInt("AUDIT_RETENTION_DAYS", 90)) * 24 * time.Hour,
			SuspicionWindow:    time.Duration(getEnvAsInt("SUSPICION_WINDOW_MINUTES", 5)) * time.Minute,
			SuspicionThreshold: getEnvAsInt("SUSPICION_THRESHOLD", 50),
			CleanupInterval:    getEnvAsDuration("AUDIT_CLEANUP_INTERVAL", 1*time.Hour),
		},
		Timing: security.TimingConfig{
			BaseDelayMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			RandomDelayMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 150),
			// Not an env knob: the validator would leak validity through
			// latency the moment this is off.
			DelayOnSuccess: true,
		},
		Alerts: AlertConfig{
			Enabled:        getEnvAsBool("ALERTS_ENABLED", false),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			FromAddress:    getEnv("ALERT_FROM_ADDRESS", ""),
			AdminAddresses: splitAndTrim(getEnv("ALERT_ADMIN_ADDRESSES", "")),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSessionSecret(sessionSecret, env); err != nil {
		return nil, err
	}

	if cfg.Alerts.Enabled && (cfg.Alerts.FromAddress == "" || len(cfg.Alerts.AdminAddresses) == 0) {
		return nil, fmt.Errorf("ALERT_FROM_ADDRESS and ALERT_ADMIN_ADDRESSES are required when alerts are enabled")
	}

	return cfg, nil
}

// parseClassLimits starts from the static class table and applies env
// overrides of the form RATE_LIMIT_LOGIN="5/15m" (max requests / window).
func parseClassLimits() map[security.EndpointClass]security.ClassLimit {
	limits := security.DefaultClassLimits()

	for class, limit := range limits {
		envKey := "RATE_LIMIT_" + strings.ToUpper(strings.ReplaceAll(string(class), "-", "_"))
		raw := os.Getenv(envKey)
		if raw == "" {
			continue
		}

		parts := strings.SplitN(raw, "/", 2)
		if len(parts) != 2 {
			continue
		}
		maxRequests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || maxRequests <= 0 {
			continue
		}
		window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
		if err != nil || window <= 0 {
			continue
		}

		limit.MaxRequests = maxRequests
		limit.Window = window
		limits[class] = limit
	}

	return limits
}

// validateSessionSecret enforces minimum security standards for the signing
// secret.
func validateSessionSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		return splitAndTrim(originsStr)
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
