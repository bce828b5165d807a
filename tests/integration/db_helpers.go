package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/campusfair/gatekeeper/internal/database"
	"github.com/campusfair/gatekeeper/internal/models"
	"github.com/campusfair/gatekeeper/internal/repositories"
	"github.com/campusfair/gatekeeper/pkg/auth"
)

// TestDB manages the PostgreSQL testcontainer and database handles.
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase starts a PostgreSQL container, runs the embedded
// migrations, and returns the ready-to-use handles.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("gatekeeper"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := database.NewFromPool(pool, logger)

	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool.
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"audit_logs",
		"students",
		"staff_users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// InitializeRepositories creates all repository instances.
func InitializeRepositories(db *database.DB) (
	*repositories.StaffRepository,
	*repositories.StudentRepository,
	*repositories.AuditLogRepository,
) {
	return repositories.NewStaffRepository(db),
		repositories.NewStudentRepository(db),
		repositories.NewAuditLogRepository(db)
}

// SeedStaff inserts a staff user with a hashed password.
func SeedStaff(ctx context.Context, pool *pgxpool.Pool, username, password, role string) (*models.StaffUser, error) {
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO staff_users (username, password_hash, name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, username, password_hash, name, role, totp_secret, active, last_login_at, created_at
	`

	var staff models.StaffUser
	err = pool.QueryRow(ctx, query, username, hashed, "Seeded "+username, role).Scan(
		&staff.ID,
		&staff.Username,
		&staff.PasswordHash,
		&staff.Name,
		&staff.Role,
		&staff.TOTPSecret,
		&staff.Active,
		&staff.LastLoginAt,
		&staff.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert staff user: %w", err)
	}
	return &staff, nil
}

// SeedStudent inserts a registered student.
func SeedStudent(ctx context.Context, pool *pgxpool.Pool, code, name string) (*models.Student, error) {
	query := `
		INSERT INTO students (code, name, email)
		VALUES ($1, $2, $3)
		RETURNING id, code, name, email, checked_in_at, registered_at
	`

	var student models.Student
	err := pool.QueryRow(ctx, query, code, name, code+"@example.edu").Scan(
		&student.ID,
		&student.Code,
		&student.Name,
		&student.Email,
		&student.CheckedInAt,
		&student.RegisteredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert student: %w", err)
	}
	return &student, nil
}
