// Package server assembles the gin engine: middleware, public routes, authenticated routes and the
// live connection endpoint.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notifyhub/backend/internal/security"
	"notifyhub/backend/internal/server/middleware"
)

// Routes is implemented by every HTTP handler package.
type Routes interface {
	Register(g gin.IRoutes)
}

// PublicRoutes is implemented by handlers that also expose unauthenticated routes.
type PublicRoutes interface {
	RegisterPublic(g gin.IRoutes)
}

// MixedRoutes is implemented by handlers with both public and authenticated routes.
type MixedRoutes interface {
	Routes
	PublicRoutes
}

// Deps holds the handlers mounted by NewRouter. Nil handlers are not mounted.
type Deps struct {
	// Tokens verifies access tokens on the authenticated group. Required when any authed handler is set.
	Tokens *security.TokenProvider
	// Auth serves /login, /refresh and /logout publicly and /sessions behind auth.
	Auth MixedRoutes
	// Notify serves POST /notify. Service-to-service; no access token.
	Notify Routes
	// Health serves /healthz and /readyz.
	Health Routes
	// Notifications serves the caller's notification list and mark-read routes.
	Notifications Routes
	// Push serves /push/public-key publicly and subscription management behind auth.
	Push MixedRoutes
	// LiveConnections is the WebSocket upgrade handler mounted at /ws.
	LiveConnections gin.HandlerFunc
	// Metrics defaults to the Prometheus default registry handler.
	Metrics http.Handler
}

// NewRouter returns a gin engine with recovery, telemetry and all routes in deps mounted.
func NewRouter(deps Deps, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Telemetry(log, "/metrics", "/healthz", "/readyz"))

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	for _, h := range []Routes{deps.Health, deps.Notify} {
		if h != nil {
			h.Register(r)
		}
	}
	for _, h := range []MixedRoutes{deps.Auth, deps.Push} {
		if h != nil {
			h.RegisterPublic(r)
		}
	}
	if deps.LiveConnections != nil {
		r.GET("/ws", deps.LiveConnections)
	}

	authed := r.Group("/", middleware.Auth(deps.Tokens))
	for _, h := range []Routes{deps.Notifications, deps.Auth, deps.Push} {
		if h != nil {
			h.Register(authed)
		}
	}
	return r
}
