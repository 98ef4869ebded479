// Package audit records security-relevant events (logins, refreshes, logouts) best-effort.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notifyhub/backend/internal/audit/domain"
	auditrepo "notifyhub/backend/internal/audit/repository"
)

// Event describes one audit entry before it is persisted.
type Event struct {
	UserID   string
	Action   string
	Resource string
	IP       string
	Metadata map[string]any
}

// AuditLogger writes audit events. LogEvent never fails the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Logger implements AuditLogger on top of the audit repository.
type Logger struct {
	repo auditrepo.Repository
	log  *zap.Logger
	now  func() time.Time
}

// NewLogger returns a Logger persisting to repo. A nil repo makes LogEvent a no-op.
func NewLogger(repo auditrepo.Repository, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, log: log.With(zap.String("component", "audit")), now: time.Now}
}

// LogEvent writes one entry. Errors are logged, not returned.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    e.UserID,
		Action:    e.Action,
		Resource:  e.Resource,
		IP:        e.IP,
		CreatedAt: l.now().UTC(),
	}
	if len(e.Metadata) > 0 {
		if b, err := json.Marshal(e.Metadata); err == nil {
			entry.Metadata = b
		}
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn("audit write failed",
			zap.String("action", e.Action), zap.String("resource", e.Resource), zap.Error(err))
	}
}
