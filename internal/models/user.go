package models

import "time"

// StaffUser is a staff, admin, or volunteer account able to sign in with a
// password. Credential verification itself happens in the auth service; this
// model only carries the stored hash.
type StaffUser struct {
	ID           string     `db:"id"`
	Username     string     `db:"username"`
	PasswordHash string     `db:"password_hash"`
	Name         string     `db:"name"`
	Role         string     `db:"role"`
	TOTPSecret   string     `db:"totp_secret"` // empty when TOTP is not enrolled
	Active       bool       `db:"active"`
	LastLoginAt  *time.Time `db:"last_login_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

// Student is a registered attendee identified by a short student code
// (two-letter prefix plus four or five digits) printed on their badge.
type Student struct {
	ID           string     `db:"id"`
	Code         string     `db:"code"`
	Name         string     `db:"name"`
	Email        string     `db:"email"`
	CheckedInAt  *time.Time `db:"checked_in_at"`
	RegisteredAt time.Time  `db:"registered_at"`
}
