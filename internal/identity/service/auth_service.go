// Package service implements the session gateway: login, refresh-token rotation and logout.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"notifyhub/backend/internal/audit"
	auditdomain "notifyhub/backend/internal/audit/domain"
	"notifyhub/backend/internal/metrics"
	"notifyhub/backend/internal/security"
	sessiondomain "notifyhub/backend/internal/session/domain"
	sessionsvc "notifyhub/backend/internal/session/service"
)

var (
	// ErrValidation is returned for malformed login input.
	ErrValidation = errors.New("validation error")
	// ErrInvalidRefreshToken is returned when the refresh value is missing, unknown, revoked or expired.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Sessions is the refresh session store used by AuthService.
type Sessions interface {
	Issue(ctx context.Context, userID, username string, client sessiondomain.ClientInfo) (*sessionsvc.Issued, error)
	Rotate(ctx context.Context, oldValue string, client sessiondomain.ClientInfo) (*sessionsvc.Issued, error)
	Revoke(ctx context.Context, value string) error
	ListActive(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
}

// AuthResult is returned by Login and Refresh. RefreshValue goes to the client's cookie only.
type AuthResult struct {
	UserID           string
	Username         string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshValue     string
	RefreshExpiresAt time.Time
}

// AuthService issues access tokens backed by rotating refresh sessions.
type AuthService struct {
	sessions Sessions
	tokens   *security.TokenProvider
	audit    audit.AuditLogger
	log      *zap.Logger
}

// NewAuthService returns an AuthService. auditLog may be nil.
func NewAuthService(sessions Sessions, tokens *security.TokenProvider, auditLog audit.AuditLogger, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		sessions: sessions,
		tokens:   tokens,
		audit:    auditLog,
		log:      log.With(zap.String("component", "auth")),
	}
}

// Login starts a session for username. The user id is the trimmed username; there is no password check.
func (s *AuthService) Login(ctx context.Context, username string, client sessiondomain.ClientInfo) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	userID := username

	iss, err := s.sessions.Issue(ctx, userID, username, client)
	if err != nil {
		return nil, err
	}
	res, err := s.result(iss)
	if err != nil {
		return nil, err
	}
	s.record(ctx, userID, auditdomain.ActionLogin, client, nil)
	s.log.Info("login", zap.String("user_id", userID))
	return res, nil
}

// Refresh rotates the session for value and issues a new access token for its user.
func (s *AuthService) Refresh(ctx context.Context, value string, client sessiondomain.ClientInfo) (*AuthResult, error) {
	if value == "" {
		metrics.TokenRefreshTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidRefreshToken
	}
	iss, err := s.sessions.Rotate(ctx, value, client)
	if err != nil {
		return nil, err
	}
	if iss == nil {
		metrics.TokenRefreshTotal.WithLabelValues("rejected").Inc()
		s.record(ctx, "", auditdomain.ActionRefreshFailure, client, nil)
		return nil, ErrInvalidRefreshToken
	}
	res, err := s.result(iss)
	if err != nil {
		return nil, err
	}
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
	s.record(ctx, res.UserID, auditdomain.ActionRefresh, client, map[string]any{"session_id": iss.Session.ID})
	return res, nil
}

// Logout revokes the session for value. Missing or already revoked values are not an error.
func (s *AuthService) Logout(ctx context.Context, value string, client sessiondomain.ClientInfo) error {
	if value == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, value); err != nil {
		return err
	}
	s.record(ctx, "", auditdomain.ActionLogout, client, nil)
	return nil
}

// ActiveSessions returns the user's unrevoked, unexpired refresh sessions.
func (s *AuthService) ActiveSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.sessions.ListActive(ctx, userID)
}

func (s *AuthService) result(iss *sessionsvc.Issued) (*AuthResult, error) {
	token, exp, err := s.tokens.IssueAccess(iss.Session.UserID, iss.Session.Username)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	return &AuthResult{
		UserID:           iss.Session.UserID,
		Username:         iss.Session.Username,
		AccessToken:      token,
		AccessExpiresAt:  exp,
		RefreshValue:     iss.Value,
		RefreshExpiresAt: iss.Session.ExpiresAt,
	}, nil
}

func (s *AuthService) record(ctx context.Context, userID, action string, client sessiondomain.ClientInfo, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if client.UserAgent != "" {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["user_agent"] = client.UserAgent
	}
	s.audit.LogEvent(ctx, audit.Event{
		UserID:   userID,
		Action:   action,
		Resource: auditdomain.ResourceSession,
		IP:       client.IP,
		Metadata: meta,
	})
}
