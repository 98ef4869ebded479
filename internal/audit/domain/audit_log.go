package domain

import (
	"encoding/json"
	"time"
)

// Actions recorded by the session gateway.
const (
	ActionLogin           = "login"
	ActionRefresh         = "refresh"
	ActionRefreshFailure  = "refresh_failure"
	ActionLogout          = "logout"
	ActionPushSubscribe   = "push_subscribe"
	ActionPushUnsubscribe = "push_unsubscribe"
)

// ResourceSession and ResourcePushSubscription name what an action touched.
const (
	ResourceSession          = "session"
	ResourcePushSubscription = "push_subscription"
)

// AuditLog is one security-relevant event. UserID is empty when the caller could not be identified.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  json.RawMessage
	CreatedAt time.Time
}
