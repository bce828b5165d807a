package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/campusfair/gatekeeper/internal/security"
	pkghttp "github.com/campusfair/gatekeeper/pkg/http"
)

// ValidationServiceInterface defines the interface for student-ID validation
type ValidationServiceInterface interface {
	Validate(ctx context.Context, rawID, ipAddress, userAgent string) (valid bool, suspicious bool)
}

// suspiciousExtraDelay is added on top of the normal timing jitter once an
// IP has crossed the probing threshold, to slow enumeration sweeps down.
const suspiciousExtraDelay = 500 * time.Millisecond

// ValidateHandler answers student-ID validation probes
type ValidateHandler struct {
	service  ValidationServiceInterface
	timing   *security.TimingDelay
	ipConfig *pkghttp.IPConfig
}

// NewValidateHandler creates a new ValidateHandler
func NewValidateHandler(service ValidationServiceInterface, timing *security.TimingDelay, ipConfig *pkghttp.IPConfig) *ValidateHandler {
	return &ValidateHandler{
		service:  service,
		timing:   timing,
		ipConfig: ipConfig,
	}
}

// validateIDRequest represents the request body for Validate
type validateIDRequest struct {
	StudentID string `json:"student_id"`
}

// Validate reports whether a student ID is registered. The response carries
// a single boolean; response timing is normalized so valid and invalid IDs
// are indistinguishable by latency. Only an undecodable body gets a 400:
// missing, over-length, and garbage IDs all flow into the service, which
// audits them and answers false like any other miss.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req validateIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	valid, suspicious := h.service.Validate(r.Context(), req.StudentID, ipAddress, userAgent)

	// Every outcome pays the full delay; validity must not be readable
	// from latency.
	h.timing.WaitFrom(start, false)
	if suspicious {
		time.Sleep(suspiciousExtraDelay)
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}
