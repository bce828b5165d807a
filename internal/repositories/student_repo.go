package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusfair/gatekeeper/internal/database"
	"github.com/campusfair/gatekeeper/internal/models"
)

// StudentRepository handles student registration data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository
func NewStudentRepository(db *database.DB) *StudentRepository {
	return &StudentRepository{pool: db.Pool}
}

const studentColumns = `id, code, name, email, checked_in_at, registered_at`

func scanStudentRow(row rowScanner) (*models.Student, error) {
	var student models.Student

	err := row.Scan(
		&student.ID, &student.Code, &student.Name, &student.Email,
		&student.CheckedInAt, &student.RegisteredAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &student, nil
}

// GetByCode retrieves a student by their badge code.
func (r *StudentRepository) GetByCode(ctx context.Context, code string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE code = $1`

	student, err := scanStudentRow(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		return nil, err
	}
	return student, nil
}

// ExistsByCode reports whether a student with the code is registered.
func (r *StudentRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check student code: %w", database.MapPostgresError(err))
	}
	return exists, nil
}

// MarkCheckedIn stamps the student's check-in time if not already set.
func (r *StudentRepository) MarkCheckedIn(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE students SET checked_in_at = COALESCE(checked_in_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark check-in: %w", database.MapPostgresError(err))
	}
	return nil
}
