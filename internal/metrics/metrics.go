// Package metrics declares the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP responses by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyhub_http_requests_total",
		Help: "The total number of HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifyhub_http_request_duration_seconds",
		Help:    "The HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// ActiveConnections is the number of authenticated live connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notifyhub_active_connections",
		Help: "The number of authenticated live connections",
	})

	// NotificationsCreated counts persisted notifications.
	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyhub_notifications_created_total",
		Help: "The total number of notifications persisted",
	})

	// NotificationsDelivered counts notification frames queued to live connections.
	NotificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyhub_notifications_delivered_live_total",
		Help: "The total number of notification frames sent to live connections",
	})

	// PushSendsTotal counts push attempts by outcome (sent, pruned, failed).
	PushSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyhub_push_sends_total",
		Help: "The total number of push send attempts by outcome",
	}, []string{"outcome"})

	// TokenRefreshTotal counts refresh attempts by status (ok, rejected).
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyhub_token_refresh_total",
		Help: "The total number of token refreshes",
	}, []string{"status"})
)
