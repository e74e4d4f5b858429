// Package slack posts messages through a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"noticer/internal/notifier"
)

type Config struct {
	WebhookURL string
	// Optional overrides; legacy webhooks honor them, app webhooks ignore them.
	Channel   string
	Username  string
	IconEmoji string
}

type Client struct {
	cfg Config
}

func New(cfg Config) (*Client, error) {
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	if cfg.WebhookURL == "" {
		return nil, errors.New("slack webhook url is empty")
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) Name() string { return "slack" }

func (c *Client) SendText(ctx context.Context, text string) error {
	msg := &slack.WebhookMessage{
		Text:      text,
		Channel:   c.cfg.Channel,
		Username:  c.cfg.Username,
		IconEmoji: c.cfg.IconEmoji,
	}
	err := slack.PostWebhookContext(ctx, c.cfg.WebhookURL, msg)
	if err == nil {
		return nil
	}

	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return notifier.RetryAfter(fmt.Errorf("slack webhook: %w", err), rl.RetryAfter)
	}
	var sc slack.StatusCodeError
	if errors.As(err, &sc) && sc.Code < http.StatusInternalServerError {
		return notifier.NoRetry(fmt.Errorf("slack webhook: %w", err))
	}
	return fmt.Errorf("slack webhook: %w", err)
}
