package repository

import (
	"context"
	"database/sql"

	"notifyhub/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists a. ID and CreatedAt must be set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	var meta any
	if len(a.Metadata) > 0 {
		meta = []byte(a.Metadata)
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.Action, a.Resource, a.IP, meta, a.CreatedAt)
	return err
}

// ListByUser returns the user's most recent entries first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, action, resource, ip, metadata, created_at
		FROM audit_logs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		var meta []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			a.Metadata = meta
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
