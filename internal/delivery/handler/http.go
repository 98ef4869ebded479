// Package handler exposes notify over HTTP for other services.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifyhub/backend/internal/delivery/service"
	ndomain "notifyhub/backend/internal/notification/domain"
)

// SourceHTTP marks requests that arrived on POST /notify.
const SourceHTTP = "http"

// Notifier is the orchestrator surface the handler needs.
type Notifier interface {
	Notify(ctx context.Context, req service.Request) (*ndomain.Notification, error)
}

// Handler serves POST /notify.
type Handler struct {
	notifier Notifier
	log      *zap.Logger
}

// New returns a Handler.
func New(n Notifier, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{notifier: n, log: log.With(zap.String("component", "notify_http"))}
}

// Register mounts the route.
func (h *Handler) Register(g gin.IRoutes) {
	g.POST("/notify", h.notify)
}

func (h *Handler) notify(c *gin.Context) {
	var req service.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	req.Source = SourceHTTP

	n, err := h.notifier.Notify(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true, "id": n.ID})
	case errors.Is(err, ndomain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDraining):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	default:
		h.log.Error("notify failed", zap.String("target_user_id", req.TargetUserID), zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
