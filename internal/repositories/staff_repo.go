package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusfair/gatekeeper/internal/database"
	"github.com/campusfair/gatekeeper/internal/models"
)

// StaffRepository handles staff account data access.
type StaffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository creates a new StaffRepository
func NewStaffRepository(db *database.DB) *StaffRepository {
	return &StaffRepository{pool: db.Pool}
}

func scanStaffRow(row rowScanner) (*models.StaffUser, error) {
	var staff models.StaffUser

	err := row.Scan(
		&staff.ID, &staff.Username, &staff.PasswordHash, &staff.Name,
		&staff.Role, &staff.TOTPSecret, &staff.Active, &staff.LastLoginAt,
		&staff.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &staff, nil
}

const staffColumns = `id, username, password_hash, name, role, totp_secret, active, last_login_at, created_at`

// GetByUsername retrieves a staff account by username.
func (r *StaffRepository) GetByUsername(ctx context.Context, username string) (*models.StaffUser, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_users WHERE username = $1`

	staff, err := scanStaffRow(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		return nil, err
	}
	return staff, nil
}

// GetByID retrieves a staff account by ID.
func (r *StaffRepository) GetByID(ctx context.Context, id string) (*models.StaffUser, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_users WHERE id = $1`

	staff, err := scanStaffRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return staff, nil
}

// Create inserts a staff account and returns the stored row.
func (r *StaffRepository) Create(ctx context.Context, staff *models.StaffUser) (*models.StaffUser, error) {
	query := `
		INSERT INTO staff_users (username, password_hash, name, role, totp_secret, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + staffColumns

	created, err := scanStaffRow(r.pool.QueryRow(
		ctx, query,
		staff.Username, staff.PasswordHash, staff.Name, staff.Role, staff.TOTPSecret, staff.Active,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create staff user: %w", err)
	}
	return created, nil
}

// TouchLastLogin records a successful login time.
func (r *StaffRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE staff_users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", database.MapPostgresError(err))
	}
	return nil
}
