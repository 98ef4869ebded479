package repository

import (
	"context"
	"database/sql"

	"notifyhub/backend/internal/push/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a push subscription repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, s *domain.Subscription) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO push_subscriptions
		(endpoint, user_id, p256dh, auth, user_agent, ip, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (endpoint) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			user_agent = EXCLUDED.user_agent,
			ip = EXCLUDED.ip,
			updated_at = EXCLUDED.updated_at`,
		s.Endpoint, s.UserID, s.Keys.P256dh, s.Keys.Auth, s.UserAgent, s.IP, s.UpdatedAt)
	return err
}

func (r *PostgresRepository) DeleteOwned(ctx context.Context, userID, endpoint string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1 AND user_id = $2`, endpoint, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepository) Delete(ctx context.Context, endpoint string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT endpoint, user_id, p256dh, auth, user_agent, ip, updated_at
		FROM push_subscriptions WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		if err := rows.Scan(&s.Endpoint, &s.UserID, &s.Keys.P256dh, &s.Keys.Auth, &s.UserAgent, &s.IP, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
