package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenProvider_IssueAndValidateAccess(t *testing.T) {
	p := NewTestTokenProvider()

	access, exp, err := p.IssueAccess("alice", "alice")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if access == "" {
		t.Fatal("access token empty")
	}
	if d := time.Until(exp); d <= 14*time.Minute || d > 15*time.Minute {
		t.Errorf("expires in %v, want ~15m", d)
	}

	claims, err := p.ValidateAccess(access)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.UserID() != "alice" || claims.Username != "alice" {
		t.Errorf("ValidateAccess: got userID=%q username=%q", claims.UserID(), claims.Username)
	}
	if claims.ID == "" {
		t.Error("jti should be set")
	}
}

func TestTokenProvider_ValidateAccessInvalid(t *testing.T) {
	p := NewTestTokenProvider()
	if _, err := p.ValidateAccess("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateAccess invalid token: want ErrInvalidToken, got %v", err)
	}
	if _, err := p.ValidateAccess(""); err != ErrInvalidToken {
		t.Errorf("ValidateAccess empty token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ExpiredToken(t *testing.T) {
	now := time.Now()
	p := NewTestTokenProvider().WithClock(func() time.Time { return now })

	access, _, err := p.IssueAccess("bob", "bob")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(access); err != nil {
		t.Fatalf("fresh token should validate: %v", err)
	}

	now = now.Add(15*time.Minute + time.Second)
	if _, err := p.ValidateAccess(access); err != ErrTokenExpired {
		t.Errorf("ValidateAccess after expiry: want ErrTokenExpired, got %v", err)
	}
}

func TestTokenProvider_TamperedToken(t *testing.T) {
	p := NewTestTokenProvider()
	access, _, err := p.IssueAccess("alice", "alice")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	parts := strings.Split(access, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts, want 3", len(parts))
	}

	forged, _, err := NewTokenProvider("other-secret", "test-issuer", time.Minute).IssueAccess("mallory", "mallory")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	forgedParts := strings.Split(forged, ".")

	// Swap in the forged payload while keeping the original signature.
	tampered := parts[0] + "." + forgedParts[1] + "." + parts[2]
	if _, err := p.ValidateAccess(tampered); err != ErrInvalidToken {
		t.Errorf("tampered payload: want ErrInvalidToken, got %v", err)
	}
	if _, err := p.ValidateAccess(forged); err != ErrInvalidToken {
		t.Errorf("wrong secret: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_WrongIssuer(t *testing.T) {
	other := NewTokenProvider(TestSecret, "someone-else", time.Minute)
	tok, _, err := other.IssueAccess("alice", "alice")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := NewTestTokenProvider().ValidateAccess(tok); err != ErrInvalidToken {
		t.Errorf("wrong issuer: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_RejectsOtherAlgorithms(t *testing.T) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(TestSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewTestTokenProvider().ValidateAccess(tok); err != ErrInvalidToken {
		t.Errorf("HS512 token: want ErrInvalidToken, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := NewTestTokenProvider().ValidateAccess(none); err != ErrInvalidToken {
		t.Errorf("alg=none token: want ErrInvalidToken, got %v", err)
	}
}
