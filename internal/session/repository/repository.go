package repository

import (
	"context"
	"time"

	"notifyhub/backend/internal/session/domain"
)

// RotateParams describes a rotation: the active session identified by OldHash is revoked at Now and
// replaced by a new session with NewID/NewHash for the same user.
type RotateParams struct {
	OldHash   string
	NewID     string
	NewHash   string
	Client    domain.ClientInfo
	ExpiresAt time.Time
	Now       time.Time
}

// Repository defines persistence for refresh sessions.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	// Rotate revokes the active session for OldHash and inserts its replacement atomically.
	// Returns (nil, nil) when no active session matches.
	Rotate(ctx context.Context, p RotateParams) (*domain.Session, error)
	// RevokeByHash revokes the active session for hash. Returns false when nothing was active.
	RevokeByHash(ctx context.Context, hash string, at time.Time) (bool, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
}
