// Package service implements the push subscription registry and the per-user push fan-out.
package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"notifyhub/backend/internal/push/domain"
	"notifyhub/backend/internal/push/repository"
)

// Registry manages push subscriptions. Endpoints are unique; subscribing an existing endpoint moves it to the caller.
type Registry struct {
	repo repository.Repository
	now  func() time.Time
}

// NewRegistry returns a Registry backed by repo.
func NewRegistry(repo repository.Repository) *Registry {
	return &Registry{repo: repo, now: time.Now}
}

// ClientInfo is the request context recorded on a subscription.
type ClientInfo struct {
	UserAgent string
	IP        string
}

// Subscribe validates and upserts the subscription for userID.
func (r *Registry) Subscribe(ctx context.Context, userID, endpoint string, keys domain.Keys, client ClientInfo) (*domain.Subscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if strings.TrimSpace(keys.P256dh) == "" || strings.TrimSpace(keys.Auth) == "" {
		return nil, fmt.Errorf("%w: keys.p256dh and keys.auth are required", domain.ErrValidation)
	}
	sub := &domain.Subscription{
		Endpoint:  endpoint,
		UserID:    userID,
		Keys:      keys,
		UserAgent: client.UserAgent,
		IP:        client.IP,
		UpdatedAt: r.now().UTC(),
	}
	if err := r.repo.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe removes endpoint if userID owns it. Endpoints owned by others are left alone without error.
func (r *Registry) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", domain.ErrValidation)
	}
	if _, err := r.repo.DeleteOwned(ctx, userID, endpoint); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// ListFor returns every subscription owned by userID.
func (r *Registry) ListFor(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	return r.repo.ListByUser(ctx, userID)
}

// PruneInvalid removes an endpoint the push service reported as gone, whoever owns it.
func (r *Registry) PruneInvalid(ctx context.Context, endpoint string) error {
	return r.repo.Delete(ctx, endpoint)
}

func validateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", domain.ErrValidation)
	}
	u, err := url.Parse(endpoint)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: endpoint must be an absolute http(s) URL", domain.ErrValidation)
	}
	return nil
}
