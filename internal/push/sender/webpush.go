// Package sender delivers push payloads to Web Push endpoints with VAPID authentication.
package sender

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"notifyhub/backend/internal/push/domain"
)

// Sender attempts one push delivery. Errors wrap domain.ErrPermanentFailure or domain.ErrTransientFailure.
type Sender interface {
	Send(ctx context.Context, sub *domain.Subscription, payload []byte) error
}

// Config holds VAPID credentials and delivery options.
type Config struct {
	PublicKey  string
	PrivateKey string
	// Subject is a mailto: address or https: URL identifying the sender.
	Subject string
	// TTL is how long the push service may hold an undelivered message.
	TTL time.Duration
	// HTTPClient overrides the transport. Defaults to a client with a 10s timeout.
	HTTPClient webpush.HTTPClient
}

// WebPush sends through github.com/SherClockHolmes/webpush-go.
type WebPush struct {
	opts webpush.Options
}

// NewWebPush returns a WebPush sender. Both keys are required.
func NewWebPush(cfg Config) (*WebPush, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("webpush: VAPID public and private keys are required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := int(cfg.TTL / time.Second)
	if ttl <= 0 {
		ttl = 60
	}
	return &WebPush{opts: webpush.Options{
		HTTPClient: client,
		// webpush-go adds the mailto: scheme itself for non-https subjects.
		Subscriber:      strings.TrimPrefix(cfg.Subject, "mailto:"),
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		TTL:             ttl,
		Urgency:         webpush.UrgencyNormal,
	}}, nil
}

// Send encrypts payload for sub and posts it to the endpoint.
// 404 and 410 are permanent; any other non-2xx or transport error is transient.
func (w *WebPush) Send(ctx context.Context, sub *domain.Subscription, payload []byte) error {
	opts := w.opts
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &opts)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return classify(resp.StatusCode)
}

func classify(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%w: push service returned %d", domain.ErrPermanentFailure, status)
	default:
		return fmt.Errorf("%w: push service returned %d", domain.ErrTransientFailure, status)
	}
}

// GenerateKeys returns a new VAPID key pair (base64url).
func GenerateKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	return publicKey, privateKey, err
}
