// Package email delivers notifications through the Postmark HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ewhitaker/larder/internal/fault"
	"github.com/ewhitaker/larder/internal/model"
	"github.com/ewhitaker/larder/internal/notify"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	apiURL      string
	httpClient  *http.Client
	backoff     func() retry.Backoff
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// Send delivers one message to the member's email address. Transient
// failures (network errors, 5xx) are retried a couple of times with
// backoff; 4xx responses are permanent. Either failure comes back as a
// typed NotifierUnavailable so the caller leaves the ledger unmarked.
func (c *Client) Send(ctx context.Context, member *model.Member, msg notify.Message) error {
	if !c.Configured() {
		return &fault.NotifierUnavailable{
			Channel:   string(model.ChannelEmail),
			Permanent: true,
			Err:       fmt.Errorf("email client not configured: missing server token"),
		}
	}
	if member.Email == "" {
		return &fault.NotifierUnavailable{
			Channel:   string(model.ChannelEmail),
			Permanent: true,
			Err:       fmt.Errorf("member %s has no email address", member.ID),
		}
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       member.Email,
		Subject:  msg.Subject,
		HtmlBody: msg.HTML,
		TextBody: msg.Text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		status, err := c.post(ctx, body)
		if err != nil {
			return retry.RetryableError(&fault.NotifierUnavailable{
				Channel: string(model.ChannelEmail), Err: err,
			})
		}
		switch {
		case status >= 500:
			return retry.RetryableError(&fault.NotifierUnavailable{
				Channel: string(model.ChannelEmail),
				Err:     fmt.Errorf("postmark API error: status %d", status),
			})
		case status >= 400:
			return &fault.NotifierUnavailable{
				Channel:   string(model.ChannelEmail),
				Permanent: true,
				Err:       fmt.Errorf("postmark rejected message: status %d", status),
			}
		}
		return nil
	})
}

func (c *Client) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
