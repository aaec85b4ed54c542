// Package push delivers notifications over web push for members with a
// stored subscription.
package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/notify"
)

// payload is the JSON sent to the push service.
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

// Service sends web push notifications.
type Service struct {
	cfg Config
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Send pushes one message to the member's subscribed device. A 410 Gone
// marks the subscription permanently dead; other push-service failures are
// transient.
func (s *Service) Send(ctx context.Context, member *model.Member, msg notify.Message) error {
	if member.Push == nil {
		return &fault.NotifierUnavailable{
			Channel:   string(model.ChannelPush),
			Permanent: true,
			Err:       fmt.Errorf("member %s has no push subscription", member.ID),
		}
	}

	data, err := json.Marshal(payload{Title: msg.Subject, Body: msg.Text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: member.Push.Endpoint,
		Keys: webpush.Keys{
			P256dh: member.Push.P256dhKey,
			Auth:   member.Push.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      s.cfg.Subscriber,
		TTL:             86400,
	})
	if err != nil {
		return &fault.NotifierUnavailable{Channel: string(model.ChannelPush), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return &fault.NotifierUnavailable{
			Channel:   string(model.ChannelPush),
			Permanent: true,
			Err:       fmt.Errorf("push subscription expired"),
		}
	}
	if resp.StatusCode >= 400 {
		return &fault.NotifierUnavailable{
			Channel: string(model.ChannelPush),
			Err:     fmt.Errorf("push service returned %d", resp.StatusCode),
		}
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
