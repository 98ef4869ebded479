package repository

import (
	"context"
	"time"

	"notifyhub/backend/internal/notification/domain"
)

// Repository defines persistence for notifications. Every read and write is scoped to a user id.
type Repository interface {
	Create(ctx context.Context, n *domain.Notification) error
	// ListUnread returns up to limit unread notifications, oldest first.
	ListUnread(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	// List returns up to limit notifications matching status, newest first.
	List(ctx context.Context, userID string, status domain.Status, limit int) ([]*domain.Notification, error)
	// MarkRead flips read on the unread notifications among ids owned by userID and returns how many changed.
	MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int64, error)
	// MarkAllRead flips every unread notification for userID.
	MarkAllRead(ctx context.Context, userID string, at time.Time) (matched, modified int64, err error)
}
