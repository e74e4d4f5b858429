// Package dingtalk posts text messages to a DingTalk group robot webhook.
package dingtalk

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"noticer/internal/notifier"
)

// errcode returned when the robot exceeds 20 messages per minute.
const codeSendTooFast = 130101

type Config struct {
	URL string
	// Secret enables signed requests (robot "加签" security setting).
	Secret  string
	Timeout time.Duration
}

type Client struct {
	webhook string
	secret  string
	http    *http.Client
	now     func() time.Time
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, errors.New("dingtalk webhook url is empty")
	}
	if _, err := url.Parse(raw); err != nil {
		return nil, fmt.Errorf("dingtalk webhook url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		webhook: raw,
		secret:  strings.TrimSpace(cfg.Secret),
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}, nil
}

func (c *Client) Name() string { return "dingtalk" }

type textMessage struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

type response struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (c *Client) SendText(ctx context.Context, text string) error {
	msg := textMessage{MsgType: "text"}
	msg.Text.Content = text
	body, err := json.Marshal(msg)
	if err != nil {
		return notifier.NoRetry(err)
	}

	target, err := c.target()
	if err != nil {
		return notifier.NoRetry(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return notifier.NoRetry(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dingtalk post: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return notifier.RetryAfter(fmt.Errorf("dingtalk: status %d", resp.StatusCode), parseRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode >= 500:
		return fmt.Errorf("dingtalk: status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return notifier.NoRetry(fmt.Errorf("dingtalk: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("dingtalk: decode response: %w", err)
	}
	switch r.ErrCode {
	case 0:
		return nil
	case codeSendTooFast:
		return notifier.RetryAfter(fmt.Errorf("dingtalk: errcode %d: %s", r.ErrCode, r.ErrMsg), time.Minute)
	default:
		return notifier.NoRetry(fmt.Errorf("dingtalk: errcode %d: %s", r.ErrCode, r.ErrMsg))
	}
}

// target appends timestamp and sign when a secret is configured.
func (c *Client) target() (string, error) {
	if c.secret == "" {
		return c.webhook, nil
	}
	u, err := url.Parse(c.webhook)
	if err != nil {
		return "", err
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	q := u.Query()
	q.Set("timestamp", ts)
	q.Set("sign", sign(ts, c.secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
