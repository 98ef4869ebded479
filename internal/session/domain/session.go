package domain

import "time"

// Session is a refresh session: a durable, revocable, rotating credential used only to mint access tokens.
// Records are never deleted; revocation sets RevokedAt.
type Session struct {
	ID        string
	UserID    string
	Username  string
	TokenHash string // SHA-256 hex of the opaque value held by the client
	UserAgent string
	IP        string
	ExpiresAt time.Time
	RevokedAt *time.Time // nil when not revoked
	CreatedAt time.Time
}

// Active reports whether the session is unrevoked and unexpired at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// ClientInfo is the request context recorded on a session.
type ClientInfo struct {
	UserAgent string
	IP        string
}
