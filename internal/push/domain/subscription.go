package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrValidation marks a malformed subscription request.
	ErrValidation = errors.New("validation error")
	// ErrPermanentFailure means the push service reported the endpoint gone; the subscription should be pruned.
	ErrPermanentFailure = errors.New("push endpoint permanently invalid")
	// ErrTransientFailure means the attempt failed but the endpoint may work later; the subscription is kept.
	ErrTransientFailure = errors.New("push delivery failed")
)

// Keys are the client's Web Push encryption keys.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a push endpoint owned by one user. Endpoint is unique across all users.
type Subscription struct {
	Endpoint  string    `json:"endpoint"`
	UserID    string    `json:"userId"`
	Keys      Keys      `json:"keys"`
	UserAgent string    `json:"userAgent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Payload is the JSON body delivered to the service worker.
type Payload struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Data  json.RawMessage `json:"data,omitempty"`
}
