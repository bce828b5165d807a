package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusfair/gatekeeper/internal/database"
	"github.com/campusfair/gatekeeper/internal/models"
)

// AuditLogRepository persists audit entries in Postgres.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLogRow(row rowScanner) (*models.AuditLog, error) {
	var entry models.AuditLog

	err := row.Scan(
		&entry.ID, &entry.Action, &entry.ActorID, &entry.ActorRole,
		&entry.IPAddress, &entry.UserAgent, &entry.Success, &entry.Details,
		&entry.ResourceType, &entry.ResourceID, &entry.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &entry, nil
}

func scanAuditLogRows(rows pgx.Rows) ([]*models.AuditLog, error) {
	defer rows.Close()

	entries := make([]*models.AuditLog, 0)

	for rows.Next() {
		entry, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return entries, nil
}

// Insert writes one immutable audit entry.
func (r *AuditLogRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, action, actor_id, actor_role, ip_address, user_agent,
			success, details, resource_type, resource_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(
		ctx, query,
		entry.ID, entry.Action, entry.ActorID, entry.ActorRole,
		entry.IPAddress, entry.UserAgent, entry.Success, entry.Details,
		entry.ResourceType, entry.ResourceID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", database.MapPostgresError(err))
	}

	return nil
}

// Query retrieves entries matching the filter, most recent first.
func (r *AuditLogRepository) Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error) {
	query := `
		SELECT id, action, actor_id, actor_role, ip_address, user_agent,
		       success, details, resource_type, resource_id, created_at
		FROM audit_logs
		WHERE ($1::text IS NULL OR action = $1)
		  AND ($2::text IS NULL OR actor_id = $2)
		  AND ($3::text IS NULL OR ip_address = $3)
		  AND ($4::boolean IS NULL OR success = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`

	rows, err := r.pool.Query(ctx, query, filter.Action, filter.ActorID, filter.IPAddress, filter.Success, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", database.MapPostgresError(err))
	}

	return scanAuditLogRows(rows)
}

// CountByActionAndIP counts entries for one action and IP since a cutoff,
// split by success. Backs the suspicious-pattern detector.
func (r *AuditLogRepository) CountByActionAndIP(ctx context.Context, action, ipAddress string, success bool, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM audit_logs
		WHERE action = $1 AND ip_address = $2 AND success = $3 AND created_at >= $4
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, action, ipAddress, success, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", database.MapPostgresError(err))
	}

	return count, nil
}

// DeleteOlderThan removes entries past the retention horizon.
func (r *AuditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit logs: %w", database.MapPostgresError(err))
	}

	return tag.RowsAffected(), nil
}
