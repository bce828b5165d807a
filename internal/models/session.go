package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SubjectKind distinguishes the two actor populations sharing the same token
// mechanics.
type SubjectKind string

const (
	SubjectStaff   SubjectKind = "staff"
	SubjectStudent SubjectKind = "student"
)

// Staff roles; students carry no role.
const (
	RoleAdmin     = "admin"
	RoleStaff     = "staff"
	RoleVolunteer = "volunteer"
)

// ValidStaffRole reports whether the role is one a staff session may carry.
func ValidStaffRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff || role == RoleVolunteer
}

// SessionClaims are the signed claims carried by a session token.
type SessionClaims struct {
	Kind      SubjectKind `json:"kind"`
	SubjectID string      `json:"sub_id"`
	Role      string      `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Session is the validated view of a token handed to request handlers.
type Session struct {
	TokenID   string
	Kind      SubjectKind
	SubjectID string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
