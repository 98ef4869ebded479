// Package handler exposes login, refresh and logout over HTTP. The refresh value travels only in an
// HttpOnly cookie; access tokens are returned in the body.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifyhub/backend/internal/identity/service"
	"notifyhub/backend/internal/server/middleware"
	sessiondomain "notifyhub/backend/internal/session/domain"
)

// Authenticator is the session gateway surface the handler needs.
type Authenticator interface {
	Login(ctx context.Context, username string, client sessiondomain.ClientInfo) (*service.AuthResult, error)
	Refresh(ctx context.Context, value string, client sessiondomain.ClientInfo) (*service.AuthResult, error)
	Logout(ctx context.Context, value string, client sessiondomain.ClientInfo) error
	ActiveSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
}

// CookieConfig controls the refresh cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// Handler serves /login, /refresh, /logout and the caller's session list.
type Handler struct {
	auth   Authenticator
	cookie CookieConfig
	log    *zap.Logger
}

// New returns a Handler.
func New(auth Authenticator, cookie CookieConfig, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{auth: auth, cookie: cookie, log: log.With(zap.String("component", "auth_http"))}
}

// RegisterPublic mounts the routes that do not require an access token.
func (h *Handler) RegisterPublic(g gin.IRoutes) {
	g.POST("/login", h.login)
	g.POST("/refresh", h.refresh)
	g.POST("/logout", h.logout)
}

// Register mounts routes that require authentication.
func (h *Handler) Register(g gin.IRoutes) {
	g.GET("/sessions", h.sessions)
}

type loginRequest struct {
	Username string `json:"username"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Username, clientInfo(c))
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
			return
		}
		h.internal(c, "login failed", err)
		return
	}
	h.setCookie(c, res.RefreshValue)
	c.JSON(http.StatusOK, gin.H{"token": res.AccessToken})
}

func (h *Handler) refresh(c *gin.Context) {
	value, _ := c.Cookie(h.cookie.Name)
	res, err := h.auth.Refresh(c.Request.Context(), value, clientInfo(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			h.clearCookie(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": middleware.ErrUnauthorized})
			return
		}
		h.internal(c, "refresh failed", err)
		return
	}
	h.setCookie(c, res.RefreshValue)
	c.JSON(http.StatusOK, gin.H{"token": res.AccessToken})
}

func (h *Handler) logout(c *gin.Context) {
	value, _ := c.Cookie(h.cookie.Name)
	if err := h.auth.Logout(c.Request.Context(), value, clientInfo(c)); err != nil {
		h.log.Warn("logout revoke failed", zap.Error(err))
		_ = c.Error(err)
	}
	h.clearCookie(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"userAgent"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) sessions(c *gin.Context) {
	list, err := h.auth.ActiveSessions(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.internal(c, "list sessions failed", err)
		return
	}
	out := make([]sessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, sessionResponse{ID: s.ID, UserAgent: s.UserAgent, IP: s.IP, CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) setCookie(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, int(h.cookie.TTL/time.Second), "/", "", h.cookie.Secure, true)
}

func (h *Handler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

func (h *Handler) internal(c *gin.Context, msg string, err error) {
	h.log.Error(msg, zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func clientInfo(c *gin.Context) sessiondomain.ClientInfo {
	return sessiondomain.ClientInfo{UserAgent: c.Request.UserAgent(), IP: middleware.ClientIP(c.Request)}
}
