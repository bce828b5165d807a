package services

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/campusfair/gatekeeper/internal/audit"
	"github.com/campusfair/gatekeeper/internal/models"
)

// studentCodePattern is the combined badge ID format: a two-letter program
// prefix followed by four or five digits.
var studentCodePattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{4,5}$`)

// NormalizeStudentCode upper-cases and trims a raw badge code and reports
// whether it matches the expected format.
func NormalizeStudentCode(raw string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	return normalized, studentCodePattern.MatchString(normalized)
}

// StudentCodeChecker is the lookup the validator needs from the
// registration store.
type StudentCodeChecker interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
}

// ValidationConfig tunes the abusive-IP detection on the validator.
type ValidationConfig struct {
	SuspicionWindow    time.Duration
	SuspicionThreshold int
}

// ValidationService answers student-ID validation probes. The response is
// only ever a boolean: malformed input, unknown codes, and internal lookup
// failures are indistinguishable to the caller, and every probe is audited
// the same way.
type ValidationService struct {
	students StudentCodeChecker
	trail    *audit.Trail
	cfg      ValidationConfig
	logger   *slog.Logger
}

// NewValidationService creates a ValidationService.
func NewValidationService(students StudentCodeChecker, trail *audit.Trail, cfg ValidationConfig, logger *slog.Logger) *ValidationService {
	return &ValidationService{
		students: students,
		trail:    trail,
		cfg:      cfg,
		logger:   logger,
	}
}

// Validate reports whether the ID belongs to a registered student, and
// whether the probing IP has crossed the suspicious-activity threshold so
// the handler can add extra latency.
func (s *ValidationService) Validate(ctx context.Context, rawID, ipAddress, userAgent string) (valid bool, suspicious bool) {
	normalized, formatOK := NormalizeStudentCode(rawID)

	if formatOK {
		exists, err := s.students.ExistsByCode(ctx, normalized)
		if err != nil {
			s.logger.Error("student code lookup failed", slog.Any("error", err))
		} else {
			valid = exists
		}
	}

	// Inline write so this probe already counts toward its own IP's
	// threshold in the detection query below.
	s.trail.LogNow(ctx, models.AuditLog{
		Action:    models.AuditActionValidate,
		IPAddress: ipAddress,
		UserAgent: &userAgent,
		Success:   valid,
	})

	suspicious = s.trail.DetectSuspiciousPattern(ctx, ipAddress, s.cfg.SuspicionWindow, s.cfg.SuspicionThreshold)
	return valid, suspicious
}
