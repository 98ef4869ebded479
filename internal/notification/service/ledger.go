// Package service implements the notification ledger: durable append and per-user read-state queries.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"notifyhub/backend/internal/notification/domain"
	"notifyhub/backend/internal/notification/repository"
)

const (
	// MaxUnread caps the catch-up batch.
	MaxUnread = 100
	// DefaultListLimit applies when List is called without a limit.
	DefaultListLimit = 50
	// MaxListLimit is the largest page List returns.
	MaxListLimit = 200
)

// Ledger is the sole writer of notifications.
type Ledger struct {
	repo repository.Repository
	now  func() time.Time
}

// NewLedger returns a Ledger backed by repo.
func NewLedger(repo repository.Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Append persists a new unread notification for userID with a server-assigned id and timestamp.
func (l *Ledger) Append(ctx context.Context, userID, title, body string, meta json.RawMessage) (*domain.Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: targetUserId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	meta = bytes.TrimSpace(meta)
	if bytes.Equal(meta, []byte("null")) {
		meta = nil
	}
	if len(meta) > 0 && !json.Valid(meta) {
		return nil, fmt.Errorf("%w: meta must be valid JSON", domain.ErrValidation)
	}
	n := &domain.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Meta:      meta,
		Read:      false,
		CreatedAt: l.now().UTC().Truncate(time.Microsecond),
	}
	if err := l.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("append notification: %w", err)
	}
	return n, nil
}

// ListUnread returns the user's unread notifications oldest first, at most MaxUnread.
func (l *Ledger) ListUnread(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > MaxUnread {
		limit = MaxUnread
	}
	return l.repo.ListUnread(ctx, userID, limit)
}

// List returns the user's notifications newest first filtered by status ("", all, read, unread).
// limit defaults to DefaultListLimit and is clamped to MaxListLimit.
func (l *Ledger) List(ctx context.Context, userID, status string, limit int) ([]*domain.Notification, error) {
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return l.repo.List(ctx, userID, st, limit)
}

// MarkRead marks the given notifications read when they belong to userID. Ids that are malformed,
// unknown or owned by someone else are skipped without error. Returns the number changed.
func (l *Ledger) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: ids must be a non-empty array", domain.ErrValidation)
	}
	valid := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			continue
		}
		if s := u.String(); !seen[s] {
			seen[s] = true
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	n, err := l.repo.MarkRead(ctx, userID, valid, l.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

// MarkAllRead marks every unread notification for userID read.
func (l *Ledger) MarkAllRead(ctx context.Context, userID string) (matched, modified int64, err error) {
	matched, modified, err = l.repo.MarkAllRead(ctx, userID, l.now().UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("mark all read: %w", err)
	}
	return matched, modified, nil
}
