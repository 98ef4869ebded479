package repository

import (
	"context"
	"database/sql"
	"time"

	"notifyhub/backend/internal/notification/domain"
)

const notificationColumns = `id, user_id, title, body, meta, read, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a notification repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists n. ID and CreatedAt must be set.
func (r *PostgresRepository) Create(ctx context.Context, n *domain.Notification) error {
	var meta any
	if len(n.Meta) > 0 {
		meta = []byte(n.Meta)
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, n.Title, n.Body, meta, n.Read, n.CreatedAt)
	return err
}

func (r *PostgresRepository) ListUnread(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	return r.query(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1 AND read = false
		ORDER BY created_at ASC, id ASC LIMIT $2`, userID, limit)
}

func (r *PostgresRepository) List(ctx context.Context, userID string, status domain.Status, limit int) ([]*domain.Notification, error) {
	switch status {
	case domain.StatusRead, domain.StatusUnread:
		return r.query(ctx, `SELECT `+notificationColumns+` FROM notifications
			WHERE user_id = $1 AND read = $2
			ORDER BY created_at DESC, id DESC LIMIT $3`, userID, status == domain.StatusRead, limit)
	default:
		return r.query(ctx, `SELECT `+notificationColumns+` FROM notifications
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	}
}

// MarkRead ignores ids owned by other users: the user_id predicate makes them match nothing.
func (r *PostgresRepository) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = true, read_at = $3
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND read = false`, userID, ids, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = true, read_at = $2
		WHERE user_id = $1 AND read = false`, userID, at)
	if err != nil {
		return 0, 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	return n, n, nil
}

func (r *PostgresRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		var meta []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &meta, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			n.Meta = meta
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}
