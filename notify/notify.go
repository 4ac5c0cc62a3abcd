// Package notify delivers best-effort web push notifications to members.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"postboard/models"

	"github.com/SherClockHolmes/webpush-go"
)

type Notification struct {
	Title string
	Body  string
	URL   string
}

// Notifier sends a notification without blocking the caller. Delivery
// failures are logged, never returned.
type Notifier interface {
	Notify(member string, n Notification)
}

type Subscriptions interface {
	FindPushSubscription(ctx context.Context, member string) (*models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, member string) error
}

// Noop is used when no VAPID keys are configured.
type Noop struct{}

func (Noop) Notify(member string, n Notification) {}

type WebPush struct {
	subs       Subscriptions
	publicKey  string
	privateKey string
	subscriber string
	client     *http.Client
	timeout    time.Duration
}

func NewWebPush(subs Subscriptions, publicKey, privateKey, subscriber string) *WebPush {
	return &WebPush{
		subs:       subs,
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		client:     &http.Client{Timeout: 5 * time.Second},
		timeout:    5 * time.Second,
	}
}

func (w *WebPush) Notify(member string, n Notification) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Push] Panic in push notification: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.Send(ctx, member, n); err != nil {
			log.Printf("[Push] Failed to notify %s: %v", member, err)
		}
	}()
}

// Send delivers n synchronously. Members without a subscription are skipped
// silently; a subscription the push service reports as gone is deleted.
func (w *WebPush) Send(ctx context.Context, member string, n Notification) error {
	sub, err := w.subs.FindPushSubscription(ctx, member)
	if err != nil {
		return fmt.Errorf("find subscription: %w", err)
	}
	if sub == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"title": n.Title,
		"body":  n.Body,
		"data": map[string]interface{}{
			"url":       n.URL,
			"timestamp": time.Now().Unix(),
		},
	})
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub.Sub, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.subscriber,
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
		TTL:             30,
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		log.Printf("[Push] Subscription expired for %s, deleting", member)
		return w.subs.DeletePushSubscription(ctx, member)
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service responded %d", resp.StatusCode)
	}
	return nil
}

// Truncate shortens body text for notification previews.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
