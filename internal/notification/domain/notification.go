package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrValidation marks malformed input. Wrapped errors carry the detail.
var ErrValidation = errors.New("validation error")

// Notification is a durable notification for one user. Only Read changes after creation, and only false to true.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Title     string          `json:"title"`
	Body      string          `json:"body,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Status filters notifications by read state.
type Status string

const (
	StatusAll    Status = "all"
	StatusRead   Status = "read"
	StatusUnread Status = "unread"
)

// ParseStatus parses a status filter. Empty means all.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusRead, StatusUnread:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: status must be one of all, read, unread", ErrValidation)
	}
}
