package security

import "time"

// TestSecret is the HS256 secret used by NewTestTokenProvider. Unit tests only.
const TestSecret = "test-secret-not-for-production"

// NewTestTokenProvider returns a TokenProvider with a fixed test secret, issuer "test-issuer" and a 15m TTL.
// For unit tests only.
func NewTestTokenProvider() *TokenProvider {
	return NewTokenProvider(TestSecret, "test-issuer", 15*time.Minute)
}
