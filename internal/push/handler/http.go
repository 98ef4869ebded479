// Package handler exposes push subscription management over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifyhub/backend/internal/push/domain"
	"notifyhub/backend/internal/push/service"
	"notifyhub/backend/internal/server/middleware"
)

// Subscriptions is the registry surface the handler needs.
type Subscriptions interface {
	Subscribe(ctx context.Context, userID, endpoint string, keys domain.Keys, client service.ClientInfo) (*domain.Subscription, error)
	Unsubscribe(ctx context.Context, userID, endpoint string) error
}

// Sender fans a payload out to a user's subscriptions.
type Sender interface {
	SendAll(ctx context.Context, userID string, payload domain.Payload) (service.Result, error)
}

// Handler serves /push.
type Handler struct {
	subs      Subscriptions
	sender    Sender
	publicKey string
	log       *zap.Logger
}

// New returns a Handler. publicKey may be empty when push is not configured.
func New(subs Subscriptions, sender Sender, publicKey string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{subs: subs, sender: sender, publicKey: publicKey, log: log.With(zap.String("component", "push_http"))}
}

// RegisterPublic mounts unauthenticated routes.
func (h *Handler) RegisterPublic(g gin.IRoutes) {
	g.GET("/push/public-key", h.publicKeyHandler)
}

// Register mounts routes that require authentication.
func (h *Handler) Register(g gin.IRoutes) {
	g.POST("/push/subscribe", h.subscribe)
	g.POST("/push/unsubscribe", h.unsubscribe)
	g.POST("/push/test", h.test)
}

func (h *Handler) publicKeyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"key": h.publicKey})
}

type subscribeRequest struct {
	Endpoint string      `json:"endpoint"`
	Keys     domain.Keys `json:"keys"`
}

func (h *Handler) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription"})
		return
	}
	client := service.ClientInfo{UserAgent: c.Request.UserAgent(), IP: middleware.ClientIP(c.Request)}
	if _, err := h.subs.Subscribe(c.Request.Context(), middleware.UserID(c), req.Endpoint, req.Keys, client); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *Handler) unsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}
	if err := h.subs.Unsubscribe(c.Request.Context(), middleware.UserID(c), req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type testRequest struct {
	Title *string         `json:"title"`
	Body  string          `json:"body"`
	Data  json.RawMessage `json:"data"`
}

// test sends synchronously so the caller sees how many devices accepted the push.
func (h *Handler) test(c *gin.Context) {
	var req testRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	title := "Test notification"
	if req.Title != nil && *req.Title != "" {
		title = *req.Title
	}
	res, err := h.sender.SendAll(c.Request.Context(), middleware.UserID(c), domain.Payload{Title: title, Body: req.Body, Data: req.Data})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sent": res.Count(service.OutcomeSent)})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.log.Error("push store failure", zap.Error(err), zap.String("user_id", middleware.UserID(c)))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
