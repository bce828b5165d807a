package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campusfair/gatekeeper/internal/handlers"
	"github.com/campusfair/gatekeeper/internal/security"
)

// mockValidationService implements handlers.ValidationServiceInterface
type mockValidationService struct {
	ValidateFunc func(ctx context.Context, rawID, ipAddress, userAgent string) (bool, bool)
}

func (m *mockValidationService) Validate(ctx context.Context, rawID, ipAddress, userAgent string) (bool, bool) {
	if m.ValidateFunc == nil {
		return false, false
	}
	return m.ValidateFunc(ctx, rawID, ipAddress, userAgent)
}

// zero delays keep the handler tests fast; timing behavior is covered by the
// security package tests
func newValidateHandler(mock *mockValidationService) *handlers.ValidateHandler {
	timing := security.NewTimingDelay(security.TimingConfig{})
	return handlers.NewValidateHandler(mock, timing, nil)
}

func TestValidate_RegisteredID_ReturnsTrue(t *testing.T) {
	mock := &mockValidationService{
		ValidateFunc: func(ctx context.Context, rawID, ipAddress, userAgent string) (bool, bool) {
			assert.Equal(t, "AB1234", rawID)
			return true, false
		},
	}
	h := newValidateHandler(mock)

	w := httptest.NewRecorder()
	h.Validate(w, postJSON("/students/validate", `{"student_id":"AB1234"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true}`, w.Body.String())
}

func TestValidate_UnknownID_ReturnsFalseOnly(t *testing.T) {
	mock := &mockValidationService{
		ValidateFunc: func(ctx context.Context, rawID, ipAddress, userAgent string) (bool, bool) {
			return false, false
		},
	}
	h := newValidateHandler(mock)

	w := httptest.NewRecorder()
	h.Validate(w, postJSON("/students/validate", `{"student_id":"ZZ9999"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String(), "no reason, no detail, just the boolean")
}

// Format problems are not the handler's to report: a missing or over-length
// ID goes through the service like any other probe so it gets audited, and
// the caller only ever learns {"valid":false}.
func TestValidate_MissingID_ReadsAsUnknown(t *testing.T) {
	var seenID *string
	mock := &mockValidationService{
		ValidateFunc: func(ctx context.Context, rawID, ipAddress, userAgent string) (bool, bool) {
			seenID = &rawID
			return false, false
		},
	}
	h := newValidateHandler(mock)

	w := httptest.NewRecorder()
	h.Validate(w, postJSON("/students/validate", `{}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())
	if assert.NotNil(t, seenID, "the probe must still reach the service") {
		assert.Equal(t, "", *seenID)
	}
}

func TestValidate_OversizedID_ReadsAsUnknown(t *testing.T) {
	oversized := `{"student_id":"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}`
	called := false
	mock := &mockValidationService{
		ValidateFunc: func(ctx context.Context, rawID, ipAddress, userAgent string) (bool, bool) {
			called = true
			return false, false
		},
	}
	h := newValidateHandler(mock)

	w := httptest.NewRecorder()
	h.Validate(w, postJSON("/students/validate", oversized))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())
	assert.True(t, called, "over-length IDs are audited, not rejected at the gate")
}

func TestValidate_MalformedBody_Returns400(t *testing.T) {
	h := newValidateHandler(&mockValidationService{})

	w := httptest.NewRecorder()
	h.Validate(w, postJSON("/students/validate", `student_id=AB1234`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// A positive answer must cost the same wall time as a negative one.
func TestValidate_ValidResponseStillDelayed(t *testing.T) {
	mock := &mockValidationService{
		ValidateFunc: func(ctx context.Context, rawID, ipAddress, userAgent string) (bool, bool) {
			return true, false
		},
	}
	// Production defaults leave DelayOnSuccess unset; the handler must
	// equalize anyway.
	timing := security.NewTimingDelay(security.TimingConfig{BaseDelayMs: 40})
	h := handlers.NewValidateHandler(mock, timing, nil)

	w := httptest.NewRecorder()
	begin := time.Now()
	h.Validate(w, postJSON("/students/validate", `{"student_id":"AB1234"}`))
	elapsed := time.Since(begin)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true}`, w.Body.String())
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}
