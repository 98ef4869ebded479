package repository

import (
	"context"

	"notifyhub/backend/internal/push/domain"
)

// Repository defines persistence for push subscriptions, keyed by endpoint.
type Repository interface {
	// Upsert inserts s or, when the endpoint exists, reassigns it to s.UserID with the new keys.
	Upsert(ctx context.Context, s *domain.Subscription) error
	// DeleteOwned deletes the endpoint only if userID owns it.
	DeleteOwned(ctx context.Context, userID, endpoint string) (bool, error)
	// Delete removes the endpoint regardless of owner.
	Delete(ctx context.Context, endpoint string) error
	ListByUser(ctx context.Context, userID string) ([]*domain.Subscription, error)
}
