package push

import (
	"context"
	"encoding/json"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
)

// Bridge delivers best-effort notifications to clients with no live
// connection. No result is reported: a missing subscription or a delivery
// failure is invisible to the event that triggered it.
type Bridge interface {
	Notify(ctx context.Context, identity, title, body, url string)
}

// SubscriptionSource looks up a stored push subscription descriptor.
type SubscriptionSource interface {
	Subscription(ctx context.Context, identity string) ([]byte, error)
}

// Config holds VAPID credentials for web push.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // contact email required by the push service
}

// WebPush sends VAPID web push notifications.
type WebPush struct {
	subs SubscriptionSource
	cfg  Config
	log  *zerolog.Logger
}

// NewWebPush creates a web push bridge reading subscriptions from subs.
func NewWebPush(subs SubscriptionSource, cfg Config, logger *zerolog.Logger) *WebPush {
	return &WebPush{subs: subs, cfg: cfg, log: logger}
}

type notification struct {
	Head string `json:"head"`
	Body string `json:"body"`
	URL  string `json:"url"`
}

func (w *WebPush) Notify(ctx context.Context, identity, title, body, url string) {
	if w.cfg.VAPIDPrivateKey == "" {
		return
	}

	descriptor, err := w.subs.Subscription(ctx, identity)
	if err != nil {
		w.log.Debug().Err(err).Str("identity", identity).Msg("push subscription lookup failed")
		return
	}
	if descriptor == nil {
		return
	}

	var sub webpush.Subscription
	if err := json.Unmarshal(descriptor, &sub); err != nil {
		w.log.Debug().Err(err).Str("identity", identity).Msg("malformed push subscription")
		return
	}

	payload, err := json.Marshal(notification{Head: title, Body: body, URL: url})
	if err != nil {
		return
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &webpush.Options{
		Subscriber:      w.cfg.Subscriber,
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
		TTL:             60,
	})
	if err != nil {
		w.log.Debug().Err(err).Str("identity", identity).Msg("push delivery failed")
		return
	}
	resp.Body.Close()
}

// Nop is a Bridge that does nothing. Used when push is not configured.
type Nop struct{}

func (Nop) Notify(context.Context, string, string, string, string) {}
