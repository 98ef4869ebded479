package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"notifyhub/backend/internal/session/domain"
)

const sessionColumns = `id, user_id, username, token_hash, user_agent, ip, expires_at, revoked_at, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session. The session must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	return insertSession(ctx, r.db, s)
}

// Rotate runs revoke-then-insert in one transaction. The conditional UPDATE takes a row lock, so of two
// concurrent rotations of the same value the second sees revoked_at set and matches zero rows.
func (r *PostgresRepository) Rotate(ctx context.Context, p RotateParams) (*domain.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var userID, username string
	err = tx.QueryRowContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING user_id, username`,
		p.OldHash, p.Now,
	).Scan(&userID, &username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	next := &domain.Session{
		ID:        p.NewID,
		UserID:    userID,
		Username:  username,
		TokenHash: p.NewHash,
		UserAgent: p.Client.UserAgent,
		IP:        p.Client.IP,
		ExpiresAt: p.ExpiresAt,
		CreatedAt: p.Now,
	}
	if err := insertSession(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

// RevokeByHash marks the active session for hash revoked. Unknown or already revoked hashes are a no-op.
func (r *PostgresRepository) RevokeByHash(ctx context.Context, hash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`,
		hash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActiveByUser returns the user's unrevoked, unexpired sessions, newest first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM refresh_sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var s domain.Session
		var revokedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.UserID, &s.Username, &s.TokenHash, &s.UserAgent, &s.IP,
			&s.ExpiresAt, &revokedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.RevokedAt = nullTimeToPtr(revokedAt)
		out = append(out, &s)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, e execer, s *domain.Session) error {
	_, err := e.ExecContext(ctx, `INSERT INTO refresh_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.Username, s.TokenHash, s.UserAgent, s.IP,
		s.ExpiresAt, timeToNullTime(s.RevokedAt), s.CreatedAt)
	return err
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
