package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions form a closed enum; entries carrying an unknown action are
// rejected before they reach storage.
const (
	AuditActionLogin              = "login"
	AuditActionLogout             = "logout"
	AuditActionCheckIn            = "check_in"
	AuditActionValidate           = "validate"
	AuditActionSessionRefresh     = "session_refresh"
	AuditActionAccessDenied       = "access_denied"
	AuditActionRateLimit          = "rate_limit"
	AuditActionLockout            = "lockout"
	AuditActionSuspiciousActivity = "suspicious_activity"
)

// Resource types referenced by audit entries
const (
	AuditResourceTypeStaff   = "staff"
	AuditResourceTypeStudent = "student"
	AuditResourceTypeSession = "session"
)

var auditActions = map[string]struct{}{
	AuditActionLogin:              {},
	AuditActionLogout:             {},
	AuditActionCheckIn:            {},
	AuditActionValidate:           {},
	AuditActionSessionRefresh:     {},
	AuditActionAccessDenied:       {},
	AuditActionRateLimit:          {},
	AuditActionLockout:            {},
	AuditActionSuspiciousActivity: {},
}

// ValidAuditAction reports whether the action belongs to the closed enum.
func ValidAuditAction(action string) bool {
	_, ok := auditActions[action]
	return ok
}

// AuditLog is one immutable security event. Written once by the core;
// dashboards only read.
type AuditLog struct {
	ID           uuid.UUID     `db:"id"`
	Action       string        `db:"action"`
	ActorID      *string       `db:"actor_id"`
	ActorRole    *string       `db:"actor_role"`
	IPAddress    string        `db:"ip_address"`
	UserAgent    *string       `db:"user_agent"`
	Success      bool          `db:"success"`
	Details      AuditMetadata `db:"details"`
	ResourceType *string       `db:"resource_type"`
	ResourceID   *string       `db:"resource_id"`
	CreatedAt    time.Time     `db:"created_at"`
}

// AuditFilter narrows dashboard queries; nil fields match everything.
type AuditFilter struct {
	Action    *string
	ActorID   *string
	IPAddress *string
	Success   *bool
	Limit     int
	Offset    int
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(am)
}

// MarshalJSON implements json.Marshaler
func (am AuditMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(am))
}

// UnmarshalJSON implements json.Unmarshaler
func (am *AuditMetadata) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}
