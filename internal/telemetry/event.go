// Package telemetry carries delivery events from the orchestrator to observability sinks
// (OTel logs, Kafka). Emission is best-effort: failures are logged and never affect delivery.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Delivery event types.
const (
	EventNotificationPersisted = "notification_persisted"
	EventDeliveredLive         = "delivered_live"
	EventPushSent              = "push_sent"
	EventPushPruned            = "push_pruned"
	EventPushFailed            = "push_failed"
)

// SourceServer is the Source of events produced by the HTTP/WebSocket server.
const SourceServer = "server"

// Event is one step of a notification's delivery.
type Event struct {
	Type           string          `json:"eventType"`
	UserID         string          `json:"userId"`
	NotificationID string          `json:"notificationId,omitempty"`
	Source         string          `json:"source"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// NewEvent returns an event stamped now. meta is marshalled into Metadata; nil leaves it empty.
func NewEvent(eventType, userID, notificationID string, meta map[string]any) *Event {
	e := &Event{
		Type:           eventType,
		UserID:         userID,
		NotificationID: notificationID,
		Source:         SourceServer,
		CreatedAt:      time.Now().UTC(),
	}
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			e.Metadata = b
		}
	}
	return e
}

// EventEmitter emits delivery events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Multi fans an event out to every non-nil emitter and joins their errors.
func Multi(emitters ...EventEmitter) EventEmitter {
	out := make(multiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multiEmitter []EventEmitter

func (m multiEmitter) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
