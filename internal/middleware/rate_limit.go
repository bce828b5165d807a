package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/campusfair/gatekeeper/internal/metrics"
	"github.com/campusfair/gatekeeper/internal/security"
	pkghttp "github.com/campusfair/gatekeeper/pkg/http"
)

// RateLimitByClass enforces the per-class request budget for every request
// passing through it, keyed by client IP. A denied request never reaches the
// handler; callers get a 429 with Retry-After set.
func RateLimitByClass(limiter *security.RateLimiter, class security.EndpointClass, ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipConfig)

			decision := limiter.Check(ip, class)
			if !decision.Allowed {
				metrics.RateLimitTripsTotal.WithLabelValues(string(class)).Inc()
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
				pkghttp.WriteTooManyRequests(w, "rate limit exceeded, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// FloodLimitConfig holds the coarse per-IP flood limit applied in front of
// the class-based limiter.
type FloodLimitConfig struct {
	RequestsPerMinute int
}

// DefaultFloodLimit returns the default coarse limit for the whole API surface.
func DefaultFloodLimit() FloodLimitConfig {
	return FloodLimitConfig{
		RequestsPerMinute: 300,
	}
}

// FloodLimitByIP creates a middleware that caps total requests per client IP.
// This is a blunt outer guard; the class-based limiter does the real work.
func FloodLimitByIP(config FloodLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "rate limit exceeded, try again later")
		}),
	)
}
