package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Sender delivers one push message to one endpoint. Implementations must
// treat delivery as fire-and-forget from the engine's point of view: an
// error is logged and the cycle continues.
type Sender interface {
	Send(ctx context.Context, ep Endpoint, title, body string) error
}

// payload is the wire contract with the service worker on the client.
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// WebPushSender sends notifications over the Web Push protocol with VAPID
// authentication. Nil-safe: a nil sender fails every Send, leaving slots
// unsent for the next configured run.
type WebPushSender struct {
	privateKey string
	publicKey  string
	subject    string
	logger     *slog.Logger
}

// NewWebPushSender creates a sender from VAPID key material. Returns nil
// when privateKey is empty (push disabled).
func NewWebPushSender(privateKey, publicKey, subject string, logger *slog.Logger) *WebPushSender {
	if privateKey == "" {
		return nil
	}
	return &WebPushSender{
		privateKey: privateKey,
		publicKey:  publicKey,
		subject:    subject,
		logger:     logger,
	}
}

// Send pushes a {title, body} JSON payload to the endpoint. A non-2xx
// status from the push service is an error; the caller decides what failure
// means (the engine logs and moves on without marking the slots sent).
func (s *WebPushSender) Send(ctx context.Context, ep Endpoint, title, body string) error {
	if s == nil {
		// Must error: a silent success would mark slots as sent
		// without any delivery.
		return fmt.Errorf("web push not configured")
	}

	data, err := json.Marshal(payload{Title: title, Body: body})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	sub := &webpush.Subscription{
		Endpoint: ep.Endpoint,
		Keys: webpush.Keys{
			P256dh: ep.P256dh,
			Auth:   ep.Auth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, data, sub, &webpush.Options{
		Subscriber:      s.subject,
		VAPIDPrivateKey: s.privateKey,
		VAPIDPublicKey:  s.publicKey,
		TTL:             3600,
	})
	if err != nil {
		return fmt.Errorf("webpush send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webpush send: status %d", resp.StatusCode)
	}
	return nil
}
