// Package handler exposes the notification ledger over HTTP for the authenticated user.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifyhub/backend/internal/notification/domain"
	"notifyhub/backend/internal/server/middleware"
)

// Ledger is the subset of the notification ledger the HTTP surface needs.
type Ledger interface {
	List(ctx context.Context, userID, status string, limit int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (matched, modified int64, err error)
}

// Handler serves /notifications.
type Handler struct {
	ledger Ledger
	log    *zap.Logger
}

// New returns a Handler.
func New(ledger Ledger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{ledger: ledger, log: log.With(zap.String("component", "notification_http"))}
}

// Register mounts the routes on g, which must already require authentication.
func (h *Handler) Register(g gin.IRoutes) {
	g.GET("/notifications", h.list)
	g.POST("/notifications/mark-read", h.markRead)
	g.POST("/notifications/mark-all-read", h.markAllRead)
}

func (h *Handler) list(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	list, err := h.ledger.List(c.Request.Context(), middleware.UserID(c), c.Query("status"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) markRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids must be a non-empty array"})
		return
	}
	n, err := h.ledger.MarkRead(c.Request.Context(), middleware.UserID(c), req.IDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": n})
}

func (h *Handler) markAllRead(c *gin.Context) {
	matched, modified, err := h.ledger.MarkAllRead(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "matched": matched, "modified": modified})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.log.Error("notification store failure", zap.Error(err), zap.String("user_id", middleware.UserID(c)))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
