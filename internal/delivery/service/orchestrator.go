// Package service implements notify: persist first, then deliver live or fall back to push.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"notifyhub/backend/internal/metrics"
	ndomain "notifyhub/backend/internal/notification/domain"
	"notifyhub/backend/internal/policy/engine"
	pushdomain "notifyhub/backend/internal/push/domain"
	pushservice "notifyhub/backend/internal/push/service"
	"notifyhub/backend/internal/realtime"
	"notifyhub/backend/internal/telemetry"
)

// ErrDenied is returned when the admission policy rejects a notify request.
var ErrDenied = errors.New("notification denied by policy")

// ErrDraining is returned once Drain has started.
var ErrDraining = errors.New("delivery orchestrator is shutting down")

// DefaultPushTimeout bounds one detached push fan-out.
const DefaultPushTimeout = 10 * time.Second

// Request is a notify call. Source says where it came from (http, kafka) for the policy.
type Request struct {
	TargetUserID string          `json:"targetUserId"`
	Title        string          `json:"title"`
	Body         string          `json:"body,omitempty"`
	Meta         json.RawMessage `json:"meta,omitempty"`
	Source       string          `json:"-"`
}

// Ledger persists notifications.
type Ledger interface {
	Append(ctx context.Context, userID, title, body string, meta json.RawMessage) (*ndomain.Notification, error)
}

// Broadcaster delivers to live connections and reports how many received the frame.
type Broadcaster interface {
	BroadcastTo(userID, event string, payload any) int
}

// Pusher fans a payload out to a user's push subscriptions.
type Pusher interface {
	Enabled() bool
	SendAll(ctx context.Context, userID string, payload pushdomain.Payload) (pushservice.Result, error)
}

// Admission decides whether a notify request may proceed. Nil admits everything.
type Admission interface {
	Evaluate(ctx context.Context, in engine.Input) (engine.Decision, error)
}

// Orchestrator coordinates the ledger, live connections and push fallback.
type Orchestrator struct {
	ledger      Ledger
	live        Broadcaster
	push        Pusher
	admission   Admission
	emitter     telemetry.EventEmitter
	log         *zap.Logger
	pushTimeout time.Duration

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAdmission sets the admission policy.
func WithAdmission(a Admission) Option { return func(o *Orchestrator) { o.admission = a } }

// WithEmitter sets the delivery event sink.
func WithEmitter(e telemetry.EventEmitter) Option { return func(o *Orchestrator) { o.emitter = e } }

// WithPushTimeout bounds each detached push fan-out.
func WithPushTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pushTimeout = d
		}
	}
}

// NewOrchestrator returns an Orchestrator. push may be nil to disable the fallback.
func NewOrchestrator(ledger Ledger, live Broadcaster, push Pusher, log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		ledger:      ledger,
		live:        live,
		push:        push,
		log:         log.With(zap.String("component", "delivery")),
		pushTimeout: DefaultPushTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Notify persists the notification, then delivers it to every live connection of the target. With no
// live connection it starts a detached push fan-out. The returned notification is the completion
// contract: delivery outcomes never turn a persisted notify into an error.
func (o *Orchestrator) Notify(ctx context.Context, req Request) (*ndomain.Notification, error) {
	req.TargetUserID = strings.TrimSpace(req.TargetUserID)
	if req.TargetUserID == "" || strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: targetUserId and title are required", ndomain.ErrValidation)
	}
	if err := o.admit(ctx, req); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		return nil, ErrDraining
	}
	o.inflight.Add(1)
	o.mu.Unlock()
	detached := false
	defer func() {
		if !detached {
			o.inflight.Done()
		}
	}()

	n, err := o.ledger.Append(ctx, req.TargetUserID, req.Title, req.Body, req.Meta)
	if err != nil {
		return nil, err
	}
	metrics.NotificationsCreated.Inc()
	o.emit(telemetry.EventNotificationPersisted, n, nil)

	if delivered := o.live.BroadcastTo(n.UserID, realtime.EventNotification, n); delivered > 0 {
		metrics.NotificationsDelivered.Add(float64(delivered))
		o.emit(telemetry.EventDeliveredLive, n, map[string]any{"connections": delivered})
		return n, nil
	}

	if o.push == nil || !o.push.Enabled() {
		return n, nil
	}
	detached = true
	go o.pushFallback(n)
	return n, nil
}

func (o *Orchestrator) admit(ctx context.Context, req Request) error {
	if o.admission == nil {
		return nil
	}
	d, err := o.admission.Evaluate(ctx, engine.Input{
		UserID:   req.TargetUserID,
		Title:    req.Title,
		Body:     req.Body,
		MetaSize: len(req.Meta),
		Source:   req.Source,
	})
	if err != nil {
		return fmt.Errorf("admission: %w", err)
	}
	if !d.Allow {
		if d.Reason != "" {
			return fmt.Errorf("%w: %s", ErrDenied, d.Reason)
		}
		return ErrDenied
	}
	return nil
}

// pushFallback runs outside the request: it uses its own deadline so a finished HTTP request
// does not cancel in-flight sends.
func (o *Orchestrator) pushFallback(n *ndomain.Notification) {
	defer o.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), o.pushTimeout)
	defer cancel()

	res, err := o.push.SendAll(ctx, n.UserID, pushdomain.Payload{Title: n.Title, Body: n.Body, Data: n.Meta})
	if err != nil {
		o.log.Warn("push fallback", zap.String("user_id", n.UserID), zap.String("notification_id", n.ID), zap.Error(err))
		return
	}
	for _, a := range res.Attempts {
		meta := map[string]any{"endpoint": a.Endpoint}
		if a.Err != nil {
			meta["error"] = a.Err.Error()
		}
		switch a.Outcome {
		case pushservice.OutcomeSent:
			o.emit(telemetry.EventPushSent, n, meta)
		case pushservice.OutcomePruned:
			o.emit(telemetry.EventPushPruned, n, meta)
		default:
			o.emit(telemetry.EventPushFailed, n, meta)
		}
	}
	o.log.Debug("push fallback done",
		zap.String("user_id", n.UserID),
		zap.Int("sent", res.Count(pushservice.OutcomeSent)),
		zap.Int("pruned", res.Count(pushservice.OutcomePruned)),
		zap.Int("failed", res.Count(pushservice.OutcomeFailed)))
}

func (o *Orchestrator) emit(eventType string, n *ndomain.Notification, meta map[string]any) {
	telemetry.EmitAsync(o.emitter, o.log, telemetry.NewEvent(eventType, n.UserID, n.ID, meta))
}

// Drain stops accepting notify calls and waits for in-flight ones, including detached push
// fan-outs, until ctx is done.
func (o *Orchestrator) Drain(ctx context.Context) error {
	o.mu.Lock()
	o.draining = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
