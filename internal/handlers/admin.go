package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campusfair/gatekeeper/internal/middleware"
	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/security"
	pkghttp "github.com/campusfair/gatekeeper/pkg/http"
)

// AuditQuerier reads back persisted audit entries for the dashboard
type AuditQuerier interface {
	Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error)
}

// AuditRecorder appends entries; manual lockout clears are themselves audited
type AuditRecorder interface {
	Log(entry models.AuditLog)
}

// AdminHandler serves the staff dashboard: audit queries and lockout
// inspection. Routes using it sit behind staff-session middleware.
type AdminHandler struct {
	trail    AuditQuerier
	recorder AuditRecorder
	attempts *security.AttemptStore
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(trail AuditQuerier, recorder AuditRecorder, attempts *security.AttemptStore) *AdminHandler {
	return &AdminHandler{
		trail:    trail,
		recorder: recorder,
		attempts: attempts,
	}
}

// AuditLogResponse represents an audit log entry in HTTP responses
type AuditLogResponse struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	ActorID      *string        `json:"actor_id,omitempty"`
	ActorRole    *string        `json:"actor_role,omitempty"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    *string        `json:"user_agent,omitempty"`
	Success      bool           `json:"success"`
	Details      map[string]any `json:"details,omitempty"`
	ResourceType *string        `json:"resource_type,omitempty"`
	ResourceID   *string        `json:"resource_id,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

// ListAuditLogs retrieves audit entries matching the query parameters
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter := models.AuditFilter{Limit: 50}

	q := r.URL.Query()
	if action := q.Get("action"); action != "" {
		if !models.ValidAuditAction(action) {
			pkghttp.WriteBadRequest(w, "unknown audit action")
			return
		}
		filter.Action = &action
	}
	if actorID := q.Get("actor_id"); actorID != "" {
		filter.ActorID = &actorID
	}
	if ip := q.Get("ip"); ip != "" {
		filter.IPAddress = &ip
	}
	if successStr := q.Get("success"); successStr != "" {
		success, err := strconv.ParseBool(successStr)
		if err != nil {
			pkghttp.WriteBadRequest(w, "success must be a boolean")
			return
		}
		filter.Success = &success
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = l
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	logs, err := h.trail.Query(r.Context(), filter)
	if err != nil {
		pkghttp.WriteInternalError(w, "failed to query audit logs")
		return
	}

	response := make([]*AuditLogResponse, len(logs))
	for i, entry := range logs {
		response[i] = auditLogToResponse(entry)
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"logs":   response,
		"count":  len(response),
		"offset": filter.Offset,
	})
}

// LockoutStatusResponse describes the attempt state of one identifier
type LockoutStatusResponse struct {
	Identifier          string `json:"identifier"`
	Scope               string `json:"scope"`
	FailureCount        int    `json:"failure_count"`
	Locked              bool   `json:"locked"`
	LockedUntil         string `json:"locked_until,omitempty"`
	ConsecutiveLockouts int    `json:"consecutive_lockouts"`
}

// GetLockoutStatus reports the failure-tracking state for an identifier
func (h *AdminHandler) GetLockoutStatus(w http.ResponseWriter, r *http.Request) {
	scope, identifier, ok := lockoutParams(r)
	if !ok {
		pkghttp.WriteBadRequest(w, "scope must be username or ip")
		return
	}

	resp := LockoutStatusResponse{
		Identifier:          identifier,
		Scope:               string(scope),
		ConsecutiveLockouts: h.attempts.ConsecutiveLockouts(identifier, scope),
	}
	if rec, exists := h.attempts.Peek(identifier, scope); exists {
		resp.FailureCount = rec.Count
		if rec.Locked(time.Now()) {
			resp.Locked = true
			resp.LockedUntil = rec.LockedUntil.UTC().Format(time.RFC3339)
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ClearLockout manually clears the failure state for an identifier. For the
// username scope this is a full reset; for the IP scope the counter only
// steps down, so a shared NAT address cannot be laundered in one call.
func (h *AdminHandler) ClearLockout(w http.ResponseWriter, r *http.Request) {
	scope, identifier, ok := lockoutParams(r)
	if !ok {
		pkghttp.WriteBadRequest(w, "scope must be username or ip")
		return
	}

	h.attempts.Clear(identifier, scope)

	var actorID *string
	if sess := middleware.SessionFromContext(r.Context()); sess != nil {
		actorID = &sess.SubjectID
	}
	h.recorder.Log(models.AuditLog{
		Action:    models.AuditActionLockout,
		ActorID:   actorID,
		IPAddress: pkghttp.ExtractClientIP(r, nil),
		Success:   true,
		Details: models.AuditMetadata{
			"event": "manual_clear",
			"scope": string(scope),
		},
	})

	w.WriteHeader(http.StatusNoContent)
}

func lockoutParams(r *http.Request) (models.Scope, string, bool) {
	identifier := chi.URLParam(r, "id")
	switch chi.URLParam(r, "scope") {
	case string(models.ScopeUsername):
		return models.ScopeUsername, identifier, identifier != ""
	case string(models.ScopeIP):
		return models.ScopeIP, identifier, identifier != ""
	default:
		return "", "", false
	}
}

func auditLogToResponse(entry *models.AuditLog) *AuditLogResponse {
	return &AuditLogResponse{
		ID:           entry.ID.String(),
		Action:       entry.Action,
		ActorID:      entry.ActorID,
		ActorRole:    entry.ActorRole,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Success:      entry.Success,
		Details:      entry.Details,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339),
	}
}
