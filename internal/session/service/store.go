// Package service implements the refresh session store: issue, rotate and revoke opaque refresh values.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notifyhub/backend/internal/security"
	"notifyhub/backend/internal/session/domain"
	"notifyhub/backend/internal/session/repository"
)

// DefaultTTL is the refresh session lifetime when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// ErrEmptyUser is returned when Issue is called without a user id.
var ErrEmptyUser = errors.New("session: user id is required")

// Issued is a freshly minted session together with the raw value to hand to the client.
// Value is never persisted.
type Issued struct {
	Session *domain.Session
	Value   string
}

// Store issues, rotates and revokes refresh sessions.
type Store struct {
	repo repository.Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewStore returns a Store. A non-positive ttl falls back to DefaultTTL.
func NewStore(repo repository.Repository, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{repo: repo, ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Issue creates a new session for the user and returns its raw value.
func (s *Store) Issue(ctx context.Context, userID, username string, client domain.ClientInfo) (*Issued, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}
	value, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	now := s.now().UTC()
	sess := &domain.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Username:  username,
		TokenHash: security.HashRefreshToken(value),
		UserAgent: client.UserAgent,
		IP:        client.IP,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Issued{Session: sess, Value: value}, nil
}

// Rotate revokes the active session for oldValue and issues its replacement for the same user.
// Returns (nil, nil) when oldValue is unknown, revoked or expired. Concurrent rotations of the same
// value yield at most one new session.
func (s *Store) Rotate(ctx context.Context, oldValue string, client domain.ClientInfo) (*Issued, error) {
	if oldValue == "" {
		return nil, nil
	}
	value, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	now := s.now().UTC()
	next, err := s.repo.Rotate(ctx, repository.RotateParams{
		OldHash:   security.HashRefreshToken(oldValue),
		NewID:     uuid.New().String(),
		NewHash:   security.HashRefreshToken(value),
		Client:    client,
		ExpiresAt: now.Add(s.ttl),
		Now:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	if next == nil {
		return nil, nil
	}
	return &Issued{Session: next, Value: value}, nil
}

// Revoke marks the session for value revoked. Unknown, empty or already revoked values are a no-op.
func (s *Store) Revoke(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	if _, err := s.repo.RevokeByHash(ctx, security.HashRefreshToken(value), s.now().UTC()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// ListActive returns the user's active sessions.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.repo.ListActiveByUser(ctx, userID, s.now().UTC())
}
