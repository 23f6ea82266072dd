// Package notify delivers due-chore reminders. The service wraps web push
// delivery; the scheduler decides when a reminder slot fires.
package notify

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/stillon/choremane/internal/model"
)

// ErrExpired is returned when the push subscription is no longer valid
// (410 Gone). The caller should drop the stored subscription.
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON delivered to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Sender delivers one notification. Satisfied by *Service; tests substitute
// their own.
type Sender interface {
	Send(sub model.PushSubscription, payload Payload) error
}

// Service sends web push notifications signed with VAPID keys.
type Service struct {
	publicKey  string
	privateKey string
	subscriber string
}

// NewService creates a push service. subscriber is the VAPID contact
// address ("mailto:..." form).
func NewService(publicKey, privateKey, subscriber string) *Service {
	if subscriber == "" {
		subscriber = "mailto:admin@stillon.top"
	}
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
	}
}

// VAPIDPublicKey returns the public key clients subscribe with.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send delivers one notification to a subscription.
func (s *Service) Send(sub model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.Bytes())
	return publicKey, privateKey, nil
}
