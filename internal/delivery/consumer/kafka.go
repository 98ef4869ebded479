// Package consumer feeds notify requests from a Kafka topic into the orchestrator.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"notifyhub/backend/internal/delivery/service"
	ndomain "notifyhub/backend/internal/notification/domain"
)

// SourceKafka marks requests that arrived on the notify topic.
const SourceKafka = "kafka"

const (
	maxAttempts  = 3
	retryBackoff = time.Second
)

// Notifier is the orchestrator surface the consumer needs.
type Notifier interface {
	Notify(ctx context.Context, req service.Request) (*ndomain.Notification, error)
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads notify requests and commits each message once it is handled or given up on.
type Consumer struct {
	reader   MessageReader
	notifier Notifier
	log      *zap.Logger
	backoff  time.Duration
}

// NewKafkaConsumer returns a consumer group reader on topic, or nil when brokers or topic are unset.
func NewKafkaConsumer(brokers []string, topic, groupID string, n Notifier, log *zap.Logger) *Consumer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  time.Second,
	})
	return NewConsumer(r, n, log)
}

// NewConsumer wraps an existing reader.
func NewConsumer(r MessageReader, n Notifier, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: r, notifier: n, log: log.With(zap.String("component", "notify_consumer")), backoff: retryBackoff}
}

// Decode parses a message value into a notify request.
func Decode(value []byte) (service.Request, error) {
	var req service.Request
	if err := json.Unmarshal(value, &req); err != nil {
		return service.Request{}, fmt.Errorf("%w: %v", ndomain.ErrValidation, err)
	}
	req.Source = SourceKafka
	return req, nil
}

// Run consumes until ctx is done. Returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("fetch notify message", zap.Error(err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Warn("commit notify message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle gives transient failures a few retries; rejected requests are dropped at once.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	req, err := Decode(msg.Value)
	if err != nil {
		c.log.Warn("dropping malformed notify message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		n, err := c.notifier.Notify(ctx, req)
		if err == nil {
			c.log.Debug("notify from kafka", zap.String("notification_id", n.ID), zap.String("user_id", n.UserID))
			return
		}
		if errors.Is(err, ndomain.ErrValidation) || errors.Is(err, service.ErrDenied) || errors.Is(err, service.ErrDraining) {
			c.log.Warn("notify message rejected", zap.Int64("offset", msg.Offset), zap.Error(err))
			return
		}
		c.log.Warn("notify from kafka failed", zap.Int("attempt", attempt), zap.Int64("offset", msg.Offset), zap.Error(err))
		if attempt < maxAttempts && !sleep(ctx, c.backoff) {
			return
		}
	}
	c.log.Error("giving up on notify message", zap.Int64("offset", msg.Offset), zap.String("target_user_id", req.TargetUserID))
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
