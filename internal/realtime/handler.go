package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"notifyhub/backend/internal/notification/domain"
	"notifyhub/backend/internal/security"
	"notifyhub/backend/internal/server/middleware"
)

const (
	// MaxMissed caps the unread batch sent on admission and on getMissed.
	MaxMissed = 100

	defaultAuthTimeout = 10 * time.Second
	storeTimeout       = 5 * time.Second
)

var errAuthFrame = errors.New("authentication error")

// Ledger is the notification store surface the gateway needs.
type Ledger interface {
	ListUnread(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
}

// Handler upgrades authenticated requests to live connections and serves the event protocol.
type Handler struct {
	registry    *Registry
	tokens      *security.TokenProvider
	ledger      Ledger
	log         *zap.Logger
	upgrader    websocket.Upgrader
	authTimeout time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuthTimeout sets how long an unauthenticated connection may wait before its auth frame.
func WithAuthTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.authTimeout = d
		}
	}
}

// WithCheckOrigin replaces the upgrader's origin check. The default accepts any origin; the
// credential travels in the token, not in cookies.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

// NewHandler returns a gateway handler.
func NewHandler(registry *Registry, tokens *security.TokenProvider, ledger Ledger, log *zap.Logger, opts ...Option) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		registry: registry,
		tokens:   tokens,
		ledger:   ledger,
		log:      log.With(zap.String("component", "realtime_gateway")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		authTimeout: defaultAuthTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeWS is the gin handler for the live connection endpoint. A token in the Authorization header
// or ?token= is checked before the upgrade; without one, the first frame must be an auth event.
func (h *Handler) ServeWS(c *gin.Context) {
	token := middleware.ExtractBearer(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	var claims *security.AccessClaims
	if token != "" {
		cl, err := h.tokens.ValidateAccess(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": middleware.ErrUnauthorized})
			return
		}
		claims = cl
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := newConn(ws)

	if claims == nil {
		claims, err = h.awaitAuth(ws)
		if err != nil {
			h.reject(conn, err)
			return
		}
	}
	h.serve(conn, claims)
}

// awaitAuth reads the first frame and validates it as an auth event.
func (h *Handler) awaitAuth(ws *websocket.Conn) (*security.AccessClaims, error) {
	_ = ws.SetReadDeadline(time.Now().Add(h.authTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, errAuthFrame
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event != EventAuth {
		return nil, errAuthFrame
	}
	var a authData
	if err := json.Unmarshal(env.Data, &a); err != nil || a.Token == "" {
		return nil, errAuthFrame
	}
	claims, err := h.tokens.ValidateAccess(a.Token)
	if err != nil {
		return nil, errAuthFrame
	}
	return claims, nil
}

// reject answers a failed first-frame handshake with an error event and close code 4401.
// The writer goroutine has not started, so writing here is safe.
func (h *Handler) reject(conn *Conn, cause error) {
	deadline := time.Now().Add(writeWait)
	_ = conn.ws.SetWriteDeadline(deadline)
	_ = conn.ws.WriteMessage(websocket.TextMessage, errorFrame(cause.Error()))
	_ = conn.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(CloseAuthFailed, cause.Error()), deadline)
	conn.Close(CloseAuthFailed, cause.Error())
	_ = conn.ws.Close()
}

func (h *Handler) serve(conn *Conn, claims *security.AccessClaims) {
	if err := conn.authenticate(claims.UserID(), claims.Username); err != nil {
		h.reject(conn, errAuthFrame)
		return
	}
	go conn.writePump()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := h.log.With(zap.String("user_id", conn.UserID()))

	if err := h.registry.Register(conn); err != nil {
		log.Warn("register connection", zap.Error(err))
		conn.Close(websocket.CloseInternalServerErr, "")
		conn.wait()
		return
	}
	log.Debug("connection registered", zap.Int("user_connections", h.registry.Count(conn.UserID())))
	h.sendMissed(ctx, conn, log)

	conn.readPump(func(env Envelope) { h.handleEvent(ctx, conn, env, log) })

	h.registry.Unregister(conn)
	conn.Close(websocket.CloseNormalClosure, "")
	conn.wait()
}

func (h *Handler) handleEvent(ctx context.Context, conn *Conn, env Envelope, log *zap.Logger) {
	switch env.Event {
	case EventGetMissed:
		h.sendMissed(ctx, conn, log)
	case EventMarkRead:
		ids, err := parseMarkRead(env.Data)
		if err != nil {
			conn.enqueue(errorFrame(err.Error()))
			return
		}
		opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		if _, err := h.ledger.MarkRead(opCtx, conn.UserID(), ids); err != nil {
			log.Warn("mark read over socket", zap.Error(err))
			conn.enqueue(errorFrame("mark read failed"))
		}
	case EventAuth:
		// Already authenticated; a repeated auth frame is ignored.
	default:
		conn.enqueue(errorFrame("unknown event: " + env.Event))
	}
}

func (h *Handler) sendMissed(ctx context.Context, conn *Conn, log *zap.Logger) {
	opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	items, err := h.ledger.ListUnread(opCtx, conn.UserID(), MaxMissed)
	if err != nil {
		log.Warn("list unread for catch-up", zap.Error(err))
		conn.enqueue(errorFrame("could not load missed notifications"))
		return
	}
	if items == nil {
		items = []*domain.Notification{}
	}
	frame, err := Encode(EventMissed, items)
	if err != nil {
		log.Error("encode missed batch", zap.Error(err))
		return
	}
	conn.enqueue(frame)
}
