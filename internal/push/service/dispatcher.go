package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"notifyhub/backend/internal/metrics"
	"notifyhub/backend/internal/push/domain"
	"notifyhub/backend/internal/push/sender"
)

// Outcome of one push attempt.
type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomePruned Outcome = "pruned"
	OutcomeFailed Outcome = "failed"
)

// Attempt records what happened to one subscription.
type Attempt struct {
	Endpoint string
	Outcome  Outcome
	Err      error
}

// Result summarises a fan-out.
type Result struct {
	Attempts []Attempt
}

// Count returns how many attempts ended with o.
func (r Result) Count(o Outcome) int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == o {
			n++
		}
	}
	return n
}

// Dispatcher sends one payload to every subscription of a user with bounded concurrency.
// A nil sender disables push: SendAll makes no attempts.
type Dispatcher struct {
	registry    *Registry
	sender      sender.Sender
	concurrency int
	log         *zap.Logger
}

// NewDispatcher returns a Dispatcher. concurrency below 1 is treated as 1.
func NewDispatcher(registry *Registry, s sender.Sender, concurrency int, log *zap.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{registry: registry, sender: s, concurrency: concurrency, log: log.With(zap.String("component", "push"))}
}

// Enabled reports whether a transport is configured.
func (d *Dispatcher) Enabled() bool { return d.sender != nil }

// SendAll attempts delivery of payload to each of userID's subscriptions exactly once. Attempts are
// independent: a failure on one never cancels the others. Permanent failures prune the subscription;
// transient ones are logged and kept. The returned error covers only the subscription lookup.
func (d *Dispatcher) SendAll(ctx context.Context, userID string, payload domain.Payload) (Result, error) {
	if d.sender == nil {
		return Result{}, nil
	}
	subs, err := d.registry.ListFor(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return Result{}, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode push payload: %w", err)
	}

	attempts := make([]Attempt, len(subs))
	// Plain errgroup.Group (no WithContext): one failed send must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			attempts[i] = d.sendOne(ctx, sub, body)
			return nil
		})
	}
	_ = g.Wait()
	return Result{Attempts: attempts}, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, sub *domain.Subscription, body []byte) Attempt {
	err := d.sender.Send(ctx, sub, body)
	switch {
	case err == nil:
		metrics.PushSendsTotal.WithLabelValues(string(OutcomeSent)).Inc()
		return Attempt{Endpoint: sub.Endpoint, Outcome: OutcomeSent}
	case errors.Is(err, domain.ErrPermanentFailure):
		metrics.PushSendsTotal.WithLabelValues(string(OutcomePruned)).Inc()
		if pruneErr := d.registry.PruneInvalid(ctx, sub.Endpoint); pruneErr != nil {
			d.log.Warn("prune subscription failed", zap.String("user_id", sub.UserID), zap.Error(pruneErr))
		}
		d.log.Info("pruned push subscription", zap.String("user_id", sub.UserID), zap.Error(err))
		return Attempt{Endpoint: sub.Endpoint, Outcome: OutcomePruned, Err: err}
	default:
		metrics.PushSendsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		d.log.Warn("push send failed", zap.String("user_id", sub.UserID), zap.Error(err))
		return Attempt{Endpoint: sub.Endpoint, Outcome: OutcomeFailed, Err: err}
	}
}
